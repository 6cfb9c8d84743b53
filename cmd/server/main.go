// Command gt-server starts the goph-talk gRPC and HTTP servers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/goph-talk/internal/auth"
	"github.com/and161185/goph-talk/internal/config"
	"github.com/and161185/goph-talk/internal/delivery"
	"github.com/and161185/goph-talk/internal/limiter"
	"github.com/and161185/goph-talk/internal/migrate"
	"github.com/and161185/goph-talk/internal/presence"
	"github.com/and161185/goph-talk/internal/repository/postgres"
	grpcserver "github.com/and161185/goph-talk/internal/server/grpc"
	httpapi "github.com/and161185/goph-talk/internal/server/http"
	"github.com/and161185/goph-talk/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main loads configuration, runs migrations, and serves gRPC and HTTP until a signal arrives.
func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	dev := flag.Bool("dev", false, "development mode: debug-friendly logs and gRPC reflection")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *dev {
		cfg.Dev = true
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("http", cfg.HTTPAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := migrate.Up(ctx, cfg.DSN, logger.Named("migrate")); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	userRepo := postgres.NewUserRepo(db)
	msgRepo := postgres.NewMessageRepo(db)
	codeRepo := postgres.NewVerificationRepo(db)

	lim := limiter.NewPG(pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)

	key := []byte(cfg.JWTSecret)
	issuer := auth.NewIssuer(key, cfg.TokenTTL)
	verifier := auth.NewVerifier(key)

	// Live delivery
	reg := presence.NewRegistry()
	dispatcher := delivery.NewDispatcher(reg, logger.Named("delivery"))

	// Services
	chatSvc := service.NewChatService(msgRepo, reg, dispatcher, logger.Named("chat"), cfg.MaxContent)
	svc := grpcserver.Services{
		Auth:         service.NewAuthService(userRepo, issuer, lim),
		Users:        service.NewUserService(userRepo),
		Verification: service.NewVerificationService(codeRepo, userRepo, service.LogSender{Log: logger.Named("sms")}, lim, cfg.CodeTTL),
		Chat:         chatSvc,
	}

	gs, app, err := newGRPCServer(cfg, logger, svc, verifier)
	if err != nil {
		return err
	}

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	web := httpapi.New(httpapi.Config{
		Auth:         svc.Auth,
		Users:        svc.Users,
		Verification: svc.Verification,
		Chat:         chatSvc,
		Tokens:       verifier,
		Stats:        chatSvc.Presence,
		DB:           db,
		Log:          logger.Named("http"),
		SendQueue:    cfg.SendQueue,
		APIRequests:  cfg.APIRequests,
		APIWindow:    cfg.APIWindow,
	})
	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           web.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown does not track hijacked websockets; close them explicitly.
	hs.RegisterOnShutdown(web.Shutdown)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLS()))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// graceful shutdown
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	app.Shutdown()
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-sctx.Done():
		gs.Stop()
	}
	return serveErr
}

func newGRPCServer(cfg config.Config, logger *zap.Logger, svc grpcserver.Services, verifier *auth.Verifier) (*grpc.Server, *grpcserver.Server, error) {
	rpcLog := logger.Named("grpc")
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(rpcLog),
			grpcserver.LoggingUnary(rpcLog),
			grpcserver.AuthUnary(verifier),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(rpcLog),
			grpcserver.LoggingStream(rpcLog),
		),
	}
	if cfg.TLS() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)

	app := grpcserver.New(svc, verifier, rpcLog, cfg.SendQueue)
	grpcserver.RegisterChatServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}
	return s, app, nil
}
