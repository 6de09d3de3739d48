package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"examportal/internal/app"
	"examportal/internal/auth"
	"examportal/internal/exam"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newExamCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Manage exams",
	}

	var ownerID int64
	imp := &cobra.Command{
		Use:   "import FILE",
		Short: "Create exams from a YAML file (one exam per document)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svcs, err := app.BuildServices(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer svcs.Close()

			owner, err := svcs.Auth.GetUser(cmd.Context(), ownerID)
			if err != nil {
				return fmt.Errorf("owner %d: %w", ownerID, err)
			}
			created, err := importExams(cmd.Context(), svcs.Exams, owner.Principal(), f)
			for _, e := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "created exam %d %q (%d questions)\n", e.ID, e.Name, len(e.Module.Questions))
			}
			return err
		},
	}
	imp.Flags().Int64Var(&ownerID, "owner", 0, "id of the teacher or admin who owns the exams")
	_ = imp.MarkFlagRequired("owner")
	cmd.AddCommand(imp)
	return cmd
}

type examCreator interface {
	CreateExam(ctx context.Context, actor auth.Principal, in exam.CreateExamInput) (*exam.Exam, error)
}

// importExams creates one exam per YAML document and stops at the first
// invalid one. Exams created before the failure are returned.
func importExams(ctx context.Context, svc examCreator, owner auth.Principal, r io.Reader) ([]*exam.Exam, error) {
	dec := yaml.NewDecoder(r)
	var created []*exam.Exam
	for doc := 1; ; doc++ {
		var in exam.CreateExamInput
		if err := dec.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				return created, nil
			}
			return created, fmt.Errorf("document %d: %w", doc, err)
		}
		e, err := svc.CreateExam(ctx, owner, in)
		if err != nil {
			return created, fmt.Errorf("document %d: %w", doc, err)
		}
		created = append(created, e)
	}
}
