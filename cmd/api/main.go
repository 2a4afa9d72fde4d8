package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-qr-auth/internal/application/otp"
	"github.com/go-qr-auth/internal/config"
	"github.com/go-qr-auth/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-qr-auth/internal/infrastructure/jwt"
	redisinfra "github.com/go-qr-auth/internal/infrastructure/redis"
	"github.com/go-qr-auth/internal/infrastructure/smsgateway"
	"github.com/go-qr-auth/internal/infrastructure/sns"
	"github.com/go-qr-auth/internal/pkg/logger"
	transporthttp "github.com/go-qr-auth/internal/transport/http"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("dynamodb client: %w", err)
	}
	if err := dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables); err != nil {
		return fmt.Errorf("bootstrap tables: %w", err)
	}

	rdb, err := redisinfra.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	sms, err := newSMSSender(ctx, cfg)
	if err != nil {
		return fmt.Errorf("sms sender: %w", err)
	}

	deps := &transporthttp.Deps{
		UserRepo:     dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users, cfg.DynamoTables.UserPhones),
		OTPRepo:      dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OTPs),
		SessionStore: redisinfra.NewStore(rdb),
		SMSSender:    sms,
		JWTProvider:  tokens,
	}
	if cfg.OTPSendLimit > 0 {
		deps.SendLimiter = redisinfra.NewLimiter(rdb, "rl:otp:", cfg.OTPSendLimit, cfg.OTPSendWindow)
	}
	if cfg.OTPMaxVerifyAttempts > 0 {
		deps.Attempts = redisinfra.NewCounter(rdb, "otp_attempts:")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newSMSSender picks the passcode delivery backend named by SMS_PROVIDER.
func newSMSSender(ctx context.Context, cfg *config.Config) (otp.SMSSender, error) {
	switch cfg.SMSProvider {
	case "sns":
		return sns.NewSender(ctx, cfg)
	case "http":
		return smsgateway.NewSender(cfg)
	case "log":
		if cfg.IsProduction() {
			return nil, errors.New("SMS_PROVIDER=log is not allowed in production")
		}
		return smsgateway.LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown SMS_PROVIDER %q", cfg.SMSProvider)
	}
}
