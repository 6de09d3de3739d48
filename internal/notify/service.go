package notify

import (
	"context"
	"strings"

	"examportal/internal/apperr"
	"examportal/internal/auth"
	"examportal/internal/validate"

	"github.com/sirupsen/logrus"
)

var ErrDeliveryFailed = apperr.Unavailable("mail_unavailable", "mail could not be delivered")

// UserDirectory resolves mail recipients.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*auth.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]auth.User, error)
}

type MailInput struct {
	Subject string `json:"subject" validate:"notblank,max=200"`
	Body    string `json:"body" validate:"notblank"`
}

type BroadcastResult struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

type Service struct {
	mailer Mailer
	users  UserDirectory
	log    logrus.FieldLogger
}

func NewService(mailer Mailer, users UserDirectory, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{mailer: mailer, users: users, log: log.WithField("component", "notify")}
}

// BroadcastToStudents mails every student one at a time. A failed send is
// logged and counted; it never stops the loop.
func (s *Service) BroadcastToStudents(ctx context.Context, in MailInput) (*BroadcastResult, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	students, err := s.users.ListUsersByRole(ctx, auth.RoleStudent)
	if err != nil {
		return nil, err
	}

	res := &BroadcastResult{Recipients: len(students)}
	for _, u := range students {
		if err := s.mailer.SendMail(ctx, u.Email, strings.TrimSpace(in.Subject), in.Body); err != nil {
			res.Failed++
			s.log.WithError(err).WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Warn("broadcast mail failed")
			continue
		}
		res.Sent++
	}
	s.log.WithFields(logrus.Fields{"recipients": res.Recipients, "sent": res.Sent, "failed": res.Failed}).Info("broadcast finished")
	return res, nil
}

func (s *Service) SendToUser(ctx context.Context, userID int64, in MailInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendMail(ctx, u.Email, strings.TrimSpace(in.Subject), in.Body); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("mail failed")
		return ErrDeliveryFailed
	}
	return nil
}
