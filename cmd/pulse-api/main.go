package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsefeed/project/internal/app/curated"
	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/pulseapi"
	"github.com/pulsefeed/project/internal/app/stores"
	"github.com/pulsefeed/project/internal/app/submission"
	platformauth "github.com/pulsefeed/project/internal/platform/auth"
	"github.com/pulsefeed/project/internal/platform/config"
	"github.com/pulsefeed/project/internal/platform/errtrack"
	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/platform/metrics"
	"github.com/pulsefeed/project/internal/platform/natsutil"
)

type apiConfig struct {
	config.Common
	DB              config.DB
	Addr            string        `env:"PULSE_API_ADDR" envDefault:":8080"`
	UIOrigin        string        `env:"UI_ORIGIN" envDefault:"http://localhost:8081"`
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dev-insecure-change-me"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"postgres"`
	CuratedTimezone string        `env:"CURATED_TIMEZONE" envDefault:"UTC"`
	AdvanceDelay    time.Duration `env:"ADVANCE_DELAY" envDefault:"600ms"`
	PublishEvents   bool          `env:"PUBLISH_EVENTS" envDefault:"true"`
	DemoUserID      string        `env:"DEMO_USER_ID"`
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg apiConfig
	if err := config.Parse(&cfg); err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := errtrack.Init(errtrack.Options{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment, Service: "pulse-api"}); err != nil {
		log.Fatal("error tracking init failed", "error", err)
	}
	defer errtrack.Flush()

	cal, err := curated.NewCalendar(cfg.CuratedTimezone)
	if err != nil {
		log.Fatal("invalid curated timezone", "error", err)
	}

	set, err := stores.Open(runCtx, cfg.StoreDriver, cfg.DB, 30*time.Second, log)
	if err != nil {
		log.Fatal("open stores failed", "driver", cfg.StoreDriver, "error", err)
	}
	defer set.Close()
	if cfg.DemoUserID != "" {
		if err := set.SeedDemo(runCtx, cfg.DemoUserID, time.Now().UTC(), cal); err != nil {
			log.Fatal("seed demo data failed", "error", err)
		}
		log.Info("seeded demo pulses", "user_id", cfg.DemoUserID)
	}

	var nc *natsutil.Client
	var publish submission.PublishFunc
	if cfg.PublishEvents {
		nc, err = natsutil.Connect(runCtx, natsutil.Options{
			URL:            cfg.NATSURL,
			Name:           "pulse-api",
			ConnectTimeout: cfg.NATSConnectTimeout,
			Log:            log,
		})
		if err != nil {
			log.Fatal("connect jetstream failed", "error", err)
		}
		defer nc.Close()
		publish = natsutil.EventPublisher{JS: nc.JS, Timeout: 5 * time.Second}.Publish
	}

	aggregator := feed.NewAggregator(set.Ratings, set.Connections, set.Curated, cal, log)
	gateway := submission.NewGateway(
		[]submission.ScheduledStore{set.Ratings, set.Connections},
		set.Curated,
		set.Responses,
		cal,
		publish,
		log,
	)
	tokens := platformauth.NewManager(cfg.JWTSecret, time.Hour)
	handler := pulseapi.NewHandler(aggregator, gateway, tokens, cfg.UIOrigin, log)
	handler.AdvanceDelay = cfg.AdvanceDelay

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), set, nc); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("pulse-api listening", "addr", cfg.Addr, "driver", set.Driver)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal("server failed", "error", err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("pulse-api graceful shutdown failed", "error", err)
	}
}

func checkReadiness(ctx context.Context, set *stores.Set, nc *natsutil.Client) error {
	if nc != nil {
		if err := nc.Ready(); err != nil {
			return err
		}
	}
	return set.Ready(ctx)
}
