package app

import (
	"net/http"
	"time"

	"examportal/internal/app/observability"
	"examportal/internal/auth"
	"examportal/internal/exam"
	"examportal/internal/leaderboard"
	"examportal/internal/notify"
	"examportal/internal/payment"
	"examportal/internal/stats"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(cfg Config, svcs *Services, collector *observability.Collector, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	authHandler := auth.NewHandler(svcs.Auth, cfg.IsProduction())
	examHandler := exam.NewHandler(svcs.Exams, svcs.Uploader)
	boardHandler := leaderboard.NewHandler(svcs.Leaderboard, svcs.Leaderboard.Hub(), log)
	paymentHandler := payment.NewHandler(svcs.Payments)
	mailHandler := notify.NewHandler(svcs.Notify)
	statsHandler := stats.NewHandler(svcs.Stats)
	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		api.Get("/auth/csrf", CSRFTokenHandler(cfg.IsProduction()))
		api.Group(func(limited chi.Router) {
			limited.Use(RateLimitMiddleware(authLimiter))
			limited.Post("/auth/register", authHandler.Register)
			limited.Post("/auth/login", authHandler.Login)
		})
		api.Get("/exams", examHandler.ListExams)
		api.Get("/exams/ratings", boardHandler.Ratings)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Post("/auth/logout", authHandler.Logout)
			secure.Get("/auth/me", authHandler.Me)
			secure.Get("/me/enrollments", examHandler.ListEnrollments)

			secure.Get("/exams/{id}", examHandler.GetExam)
			secure.Post("/exams/{id}/enroll", examHandler.Enroll)
			secure.Post("/exams/{id}/attempt", examHandler.StartAttempt)
			secure.Put("/exams/{id}/attempt", examHandler.SubmitAttempt)
			secure.Post("/exams/{id}/review", examHandler.SubmitReview)
			secure.Get("/exams/{id}/result", examHandler.GetResult)
			secure.Get("/exams/{id}/top", boardHandler.Top)
			secure.Get("/exams/{id}/leaderboard/ws", boardHandler.Live)

			secure.Post("/payments/orders", paymentHandler.CreateOrder)
			secure.Post("/payments/verify", paymentHandler.Verify)

			secure.Group(func(staff chi.Router) {
				staff.Use(authHandler.RequireRoles(auth.RoleTeacher, auth.RoleAdmin))
				staff.Post("/exams", examHandler.CreateExam)
				staff.Put("/exams/{id}", examHandler.UpdateExam)
				staff.Delete("/exams/{id}", examHandler.DeleteExam)
				staff.Post("/exams/{id}/image", examHandler.UploadImage)
				staff.Get("/exams/{id}/report", boardHandler.Report)
			})

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(auth.RoleAdmin))
				admin.Get("/admin/attempts", examHandler.ListAttempts)
				admin.Post("/admin/mail", mailHandler.Broadcast)
				admin.Post("/admin/mail/{userID}", mailHandler.SendToUser)
				admin.Get("/admin/stats", statsHandler.List)
				admin.Get("/admin/metrics", collector.MetricsHandler)
			})
		})
	})

	return r
}
