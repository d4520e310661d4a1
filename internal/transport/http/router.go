package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rail-account-api/internal/application/credential"
	"github.com/rail-account-api/internal/application/login"
	"github.com/rail-account-api/internal/application/passwordreset"
	"github.com/rail-account-api/internal/application/phonechange"
	"github.com/rail-account-api/internal/application/registration"
	"github.com/rail-account-api/internal/application/verification"
	"github.com/rail-account-api/internal/config"
	"github.com/rail-account-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/rail-account-api/internal/infrastructure/jwt"
	"github.com/rail-account-api/internal/infrastructure/smtp"
	"github.com/rail-account-api/internal/infrastructure/sns"
	"github.com/rail-account-api/internal/transport/http/handler"
	appmiddleware "github.com/rail-account-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	SessionRepo      *dynamo.SessionRepo
	VerificationRepo *dynamo.VerificationRepo
	ResetTokenRepo   *dynamo.ResetTokenRepo
	Mailer           smtp.Mailer
	SMSSender        sns.SMSSender
	JWTProvider      *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider, deps.SessionRepo)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	codeSvc := verification.NewService(verification.ServiceDeps{
		CodeRepo:  deps.VerificationRepo,
		Mailer:    deps.Mailer,
		SMSSender: deps.SMSSender,
	})
	credentials := credential.NewValidator(deps.UserRepo)
	loginSvc := login.NewService(login.ServiceDeps{
		Credentials: credentials,
		SessionRepo: deps.SessionRepo,
		UserRepo:    deps.UserRepo,
		Codes:       codeSvc,
		JWTProvider: deps.JWTProvider,
	})
	registrationSvc := registration.NewService(registration.ServiceDeps{
		UserRepo:    deps.UserRepo,
		SessionRepo: deps.SessionRepo,
		Codes:       codeSvc,
	})
	resetSvc := passwordreset.NewService(passwordreset.ServiceDeps{
		UserRepo:       deps.UserRepo,
		SessionRepo:    deps.SessionRepo,
		ResetTokenRepo: deps.ResetTokenRepo,
		Codes:          codeSvc,
	})
	phoneSvc := phonechange.NewService(phonechange.ServiceDeps{
		UserRepo:    deps.UserRepo,
		SessionRepo: deps.SessionRepo,
		Codes:       codeSvc,
	})

	echoCodes := cfg.DebugEchoCodes

	healthH := handler.NewHealthHandler()
	loginH := handler.NewLoginHandler(loginSvc, echoCodes)
	registrationH := handler.NewRegistrationHandler(registrationSvc, echoCodes)
	resetH := handler.NewPasswordResetHandler(resetSvc, echoCodes)
	phoneH := handler.NewPhoneChangeHandler(phoneSvc, echoCodes)
	sessionsH := handler.NewSessionsHandler(deps.SessionRepo, deps.UserRepo)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/login", loginH.Submit)
		r.With(sensitiveRL.Limit).Post("/login/request-code", loginH.RequestCode)
		r.With(sensitiveRL.Limit).Post("/login/submit-code", loginH.SubmitCode)

		r.With(sensitiveRL.Limit).Post("/register", registrationH.Submit)
		r.With(sensitiveRL.Limit).Post("/register/send-code", registrationH.SendCode)
		r.With(sensitiveRL.Limit).Post("/register/complete", registrationH.Complete)

		r.With(sensitiveRL.Limit).Post("/password-reset/{action}", resetH.Action)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionsH.GetCurrent)
			r.Post("/sessions/logout", sessionsH.Logout)

			r.Post("/phone-change/{action}", phoneH.Action)
		})
	})

	return r
}
