package cli

import (
	"fmt"

	"examportal/internal/app"
	"examportal/internal/auth"

	"github.com/spf13/cobra"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var (
		in   auth.RegisterInput
		role string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account with any role",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := app.BuildServices(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer svcs.Close()

			u, err := svcs.Auth.CreateUser(cmd.Context(), in, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q with id %d\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&in.Username, "username", "", "login name")
	add.Flags().StringVar(&in.FullName, "full-name", "", "display name")
	add.Flags().StringVar(&in.Email, "email", "", "email address")
	add.Flags().StringVar(&in.Password, "password", "", "initial password")
	add.Flags().StringVar(&role, "role", auth.RoleStudent, "student, teacher or admin")
	for _, f := range []string{"username", "full-name", "email", "password"} {
		_ = add.MarkFlagRequired(f)
	}
	cmd.AddCommand(add)
	return cmd
}
