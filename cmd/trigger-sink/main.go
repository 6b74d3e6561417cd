package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsefeed/project/internal/app/stores"
	"github.com/pulsefeed/project/internal/app/triggers"
	"github.com/pulsefeed/project/internal/platform/config"
	"github.com/pulsefeed/project/internal/platform/errtrack"
	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/platform/metrics"
	"github.com/pulsefeed/project/internal/platform/natsutil"
)

type sinkConfig struct {
	config.Common
	DB          config.DB
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	MetricsAddr string `env:"TRIGGER_SINK_METRICS_ADDR" envDefault:":9101"`
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg sinkConfig
	if err := config.Parse(&cfg); err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := errtrack.Init(errtrack.Options{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment, Service: "trigger-sink"}); err != nil {
		log.Fatal("error tracking init failed", "error", err)
	}
	defer errtrack.Flush()

	set, err := stores.Open(runCtx, cfg.StoreDriver, cfg.DB, 30*time.Second, log)
	if err != nil {
		log.Fatal("open stores failed", "driver", cfg.StoreDriver, "error", err)
	}
	defer set.Close()

	client, err := natsutil.Connect(runCtx, natsutil.Options{
		URL:            cfg.NATSURL,
		Name:           "trigger-sink",
		ConnectTimeout: cfg.NATSConnectTimeout,
		Log:            log,
	})
	if err != nil {
		log.Fatal("connect jetstream failed", "error", err)
	}
	defer client.Close()

	service := triggers.NewService(set.Ratings, set.Connections, log)
	sub, err := triggers.Subscribe(runCtx, client.JS, service, log)
	if err != nil {
		log.Fatal("subscribe failed", "error", err)
	}
	defer func() { _ = sub.Drain() }()
	log.Info("trigger-sink listening", "subject", sub.Subject, "queue", triggers.QueueGroup)

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           opsMux(set, client),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	<-runCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func opsMux(set *stores.Set, client *natsutil.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := client.Ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := set.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
