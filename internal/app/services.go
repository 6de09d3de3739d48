package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"examportal/internal/auth"
	"examportal/internal/db"
	"examportal/internal/exam"
	"examportal/internal/leaderboard"
	"examportal/internal/media"
	"examportal/internal/notify"
	"examportal/internal/payment"
	"examportal/internal/stats"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Services is the wired application graph shared by the HTTP server and
// the CLI commands.
type Services struct {
	DB          *sql.DB
	Auth        *auth.Service
	Exams       *exam.Service
	Leaderboard *leaderboard.Service
	Payments    *payment.Service
	Notify      *notify.Service
	Stats       *stats.Service
	// Uploader is nil when object storage is not configured.
	Uploader exam.ImageUploader

	closers []func()
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// BuildServices opens Postgres and wires every service onto it.
func BuildServices(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Services, error) {
	conn, err := db.Open(ctx, db.Config{
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	}, log)
	if err != nil {
		return nil, err
	}
	users := auth.NewPostgresStore(conn)
	exams := exam.NewPostgresStore(conn)
	svcs, err := wire(ctx, cfg, log, storeSet{
		users:    users,
		exams:    exams,
		payments: payment.NewPostgresStore(conn),
		stats:    stats.NewPostgresStore(conn),
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	svcs.DB = conn
	svcs.closers = append(svcs.closers, func() { _ = conn.Close() })
	return svcs, nil
}

// BuildMemoryServices wires every service onto in-process stores. Data is
// lost on exit.
func BuildMemoryServices(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Services, error) {
	users := auth.NewMemoryStore()
	exams := exam.NewMemoryStore(users)
	payments := payment.NewMemoryStore(exams)
	exams.OnDelete(payments.DeleteByExam)
	return wire(ctx, cfg, log, storeSet{
		users:    users,
		exams:    exams,
		payments: payments,
		stats:    stats.NewMemoryStore(users, exams, payments),
	})
}

type storeSet struct {
	users    auth.Store
	exams    exam.Store
	payments payment.Store
	stats    stats.Store
}

func wire(ctx context.Context, cfg Config, log logrus.FieldLogger, st storeSet) (*Services, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_SECRET is required in production")
		}
		secret = uuid.NewString()
		log.Warn("JWT_SECRET not set, using an ephemeral secret")
	}

	svcs := &Services{}
	svcs.Auth = auth.NewService(st.users, auth.ServiceConfig{
		Secret:   secret,
		TokenTTL: time.Duration(cfg.JWTTTLHours) * time.Hour,
	})

	var cache leaderboard.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis unreachable, leaderboard cache disabled")
			_ = client.Close()
		} else {
			cache = leaderboard.NewRedisCache(client, cfg.LeaderboardCacheTTL)
			svcs.closers = append(svcs.closers, func() { _ = client.Close() })
		}
	}
	svcs.Leaderboard = leaderboard.NewService(st.exams, leaderboard.ServiceConfig{Cache: cache, Logger: log})
	svcs.Exams = exam.NewService(st.exams, exam.ServiceConfig{Logger: log, Listener: svcs.Leaderboard})

	var gateway payment.Gateway
	if g := payment.NewRazorpay(payment.RazorpayConfig{KeyID: cfg.RazorpayKeyID, KeySecret: cfg.RazorpayKeySecret}); g != nil {
		gateway = g
	} else {
		log.Info("razorpay credentials not set, paid enrollment disabled")
	}
	svcs.Payments = payment.NewService(st.payments, st.exams, payment.ServiceConfig{
		Gateway:  gateway,
		Currency: cfg.PaymentCurrency,
		Logger:   log,
	})

	svcs.Notify = notify.NewService(selectMailer(cfg, log), st.users, log)
	svcs.Stats = stats.NewService(st.stats, nil, log)

	if cfg.OSSEndpoint != "" && cfg.OSSBucket != "" {
		store, err := media.NewOSSStore(media.OSSConfig{
			Endpoint:        cfg.OSSEndpoint,
			AccessKeyID:     cfg.OSSAccessKeyID,
			AccessKeySecret: cfg.OSSAccessKeySecret,
			Bucket:          cfg.OSSBucket,
			PublicBaseURL:   cfg.OSSPublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("media store: %w", err)
		}
		svcs.Uploader = store
	} else {
		log.Info("object storage not configured, exam image upload disabled")
	}
	return svcs, nil
}

func selectMailer(cfg Config, log logrus.FieldLogger) notify.Mailer {
	if m := notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFrom); m != nil {
		return m
	}
	if m := notify.NewSMTPMailer(notify.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.MailFrom,
	}); m != nil {
		return m
	}
	log.Info("no mail transport configured, mail is logged only")
	return notify.NewLogMailer(log)
}
