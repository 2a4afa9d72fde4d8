package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-qr-auth/internal/application/otp"
	"github.com/go-qr-auth/internal/application/session"
	"github.com/go-qr-auth/internal/application/user"
	"github.com/go-qr-auth/internal/config"
	"github.com/go-qr-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-qr-auth/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background cleanup of the per-IP limiter.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(appmiddleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.APIKeyHeader},
		ExposedHeaders:   []string{appmiddleware.APIKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 per client IP on the public auth routes.
	publicRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	sessionSvc := session.NewService(session.ServiceDeps{
		Store:                 deps.SessionStore,
		Users:                 deps.UserRepo,
		Tokens:                deps.JWTProvider,
		ExchangeKeysEnabled:   cfg.ExchangeKeysEnabled,
		ExchangeKeyTTL:        cfg.ExchangeKeyTTL,
		APIKeySessionsEnabled: cfg.APIKeySessionsEnabled,
		APIKeySessionTTL:      cfg.APIKeySessionTTL,
		RotateExpiredAPIKeys:  cfg.RotateExpiredAPIKeys,
	})
	otpSvc := otp.NewService(otp.ServiceDeps{
		OTPs:              deps.OTPRepo,
		Users:             deps.UserRepo,
		SMS:               deps.SMSSender,
		Sessions:          sessionSvc,
		Limiter:           deps.SendLimiter,
		Attempts:          deps.Attempts,
		CountryCodes:      cfg.CountryCodes,
		OTPTTL:            cfg.OTPTTL,
		HashCost:          cfg.OTPHashCost,
		SMSTimeout:        cfg.SMSTimeout,
		MaxVerifyAttempts: cfg.OTPMaxVerifyAttempts,
	})
	userSvc := user.NewService(user.ServiceDeps{UserRepo: deps.UserRepo})

	debug := !cfg.IsProduction()
	authH := handler.NewAuthHandler(otpSvc, sessionSvc, handler.AuthOptions{
		ExchangeKeys:   cfg.ExchangeKeysEnabled,
		ExchangeKeyTTL: cfg.ExchangeKeyTTL,
		AccessTTL:      deps.JWTProvider.AccessTTL(),
		Debug:          debug,
	})
	userH := handler.NewUserHandler(userSvc, debug)
	healthH := handler.NewHealthHandler(map[string]handler.Pinger{
		"redis":    deps.SessionStore,
		"dynamodb": deps.UserRepo,
	})

	authMw := appmiddleware.Auth(sessionSvc, cfg.APIKeySessionsEnabled)

	r.Get("/health-check/{action}", healthH.Check)

	r.Route("/auth", func(r chi.Router) {
		r.With(publicRL.Limit).Post("/send-otp", authH.SendOTP)
		r.With(publicRL.Limit).Post("/verify-otp", authH.VerifyOTP)
		r.With(publicRL.Limit).Post("/exchange-tokens", authH.ExchangeTokens)
		r.With(publicRL.Limit).Post("/refresh-token", authH.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Post("/signout", authH.SignOut)
			r.Get("/protected", authH.Whoami)
			r.Get("/check-auth", authH.Whoami)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authMw)
		r.Get("/profile", userH.GetProfile)
		r.Put("/profile", userH.UpdateProfile)
	})

	return r
}
