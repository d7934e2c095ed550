package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"schedula/booking/internal/config"
	"schedula/booking/internal/metrics"
	"schedula/booking/internal/service/availability"
	"schedula/booking/internal/service/booking"
	"schedula/booking/internal/service/schedules"
	"schedula/booking/internal/store"
	"schedula/booking/internal/store/memory"
	"schedula/booking/internal/store/postgres"
	grpcTransport "schedula/booking/internal/transport/grpc"
)

const readinessInterval = 15 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "schedula-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "schedula-server"),
	)
	slog.SetDefault(log)

	log.Info(
		"starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("log_level", cfg.LogLevel),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("booking_timezone", cfg.BookingLocation.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st    store.Store
		ready func(context.Context) error
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		mem := memory.New(cfg.BookingLockTimeout)
		if cfg.StoreSeedFile != "" {
			seed, err := memory.LoadSeed(cfg.StoreSeedFile)
			if err == nil {
				err = mem.Apply(seed)
			}
			if err != nil {
				log.Error("store seed failed", slog.Any("err", err), slog.String("seed_file", cfg.StoreSeedFile))
				os.Exit(1)
			}
			log.Info(
				"store seeded",
				slog.String("seed_file", cfg.StoreSeedFile),
				slog.Int("employees", len(seed.Employees)),
				slog.Int("services", len(seed.Services)),
			)
		}
		st = mem
	default:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err := postgres.Open(openCtx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		cancel()
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			os.Exit(1)
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		st = postgres.NewRepo(db, cfg.BookingLockTimeout)
		ready = postgres.ReadyCheck(db)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	bookingSvc := booking.NewService(st, availability.NewEngine(cfg.BookingLocation), m)
	schedulesSvc := schedules.NewService(st)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.DefaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
			grpcTransport.MetricsInterceptor(m),
		),
	)
	grpcTransport.RegisterBookingServer(grpcServer, grpcTransport.NewBookingServer(bookingSvc, log))
	grpcTransport.RegisterSchedulesServer(grpcServer, grpcTransport.NewSchedulesServer(schedulesSvc, log))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	setServing(healthServer, healthpb.HealthCheckResponse_SERVING)
	if ready != nil {
		go watchReadiness(ctx, log, healthServer, ready)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			if ready != nil {
				pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
				err := ready(pingCtx)
				cancel()
				if err != nil {
					http.Error(w, "database not ready", http.StatusServiceUnavailable)
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		log.Info("metrics server started", slog.String("metrics_addr", cfg.MetricsAddr))
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		setServing(healthServer, healthpb.HealthCheckResponse_NOT_SERVING)
		shutdown(log, grpcServer, metricsServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func setServing(h *health.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", status)
	h.SetServingStatus(grpcTransport.BookingServiceName, status)
	h.SetServingStatus(grpcTransport.SchedulesServiceName, status)
}

// watchReadiness flips the health status when the database stops answering.
func watchReadiness(ctx context.Context, log *slog.Logger, h *health.Server, ready func(context.Context) error) {
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := ready(pingCtx)
		cancel()

		switch {
		case err != nil && serving:
			log.Warn("database not ready", slog.Any("err", err))
			setServing(h, healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			log.Info("database ready again")
			setServing(h, healthpb.HealthCheckResponse_SERVING)
			serving = true
		}
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, metricsServer *http.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}

	if metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown failed", slog.Any("err", err))
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
