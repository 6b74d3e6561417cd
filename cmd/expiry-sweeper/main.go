package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nuid"

	"github.com/pulsefeed/project/internal/app/pulse"
	"github.com/pulsefeed/project/internal/app/stores"
	"github.com/pulsefeed/project/internal/app/sweeper"
	"github.com/pulsefeed/project/internal/platform/config"
	"github.com/pulsefeed/project/internal/platform/errtrack"
	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/internal/platform/metrics"
	"github.com/pulsefeed/project/internal/platform/redislock"
)

type sweeperConfig struct {
	config.Common
	DB               config.DB
	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"postgres"`
	Interval         time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	Retention        time.Duration `env:"SWEEP_RETENTION" envDefault:"168h"`
	BatchSize        int           `env:"SWEEP_BATCH_SIZE" envDefault:"500"`
	BatchesPerSecond int           `env:"SWEEP_BATCHES_PER_SECOND" envDefault:"5"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	LockKey          string        `env:"SWEEP_LOCK_KEY" envDefault:"pulse:sweeper:lock"`
	LockTTL          time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"4m"`
	MetricsAddr      string        `env:"SWEEPER_METRICS_ADDR" envDefault:":9102"`
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg sweeperConfig
	if err := config.Parse(&cfg); err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := errtrack.Init(errtrack.Options{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment, Service: "expiry-sweeper"}); err != nil {
		log.Fatal("error tracking init failed", "error", err)
	}
	defer errtrack.Flush()

	set, err := stores.Open(runCtx, cfg.StoreDriver, cfg.DB, 30*time.Second, log)
	if err != nil {
		log.Fatal("open stores failed", "driver", cfg.StoreDriver, "error", err)
	}
	defer set.Close()

	var lock sweeper.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redislock.Connect(runCtx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("connect redis failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rdb.Close()
		lock = redislock.New(rdb, cfg.LockKey, nuid.Next(), cfg.LockTTL)
	}

	sw := sweeper.New([]sweeper.Target{
		{Name: pulse.TableFor(pulse.SourceResourceRating), Repo: set.RatingRepo},
		{Name: pulse.TableFor(pulse.SourceConnectionFeedback), Repo: set.ConnRepo},
	}, lock, cfg.BatchesPerSecond, log)
	sw.Retention = cfg.Retention
	sw.BatchSize = cfg.BatchSize

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := set.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	log.Info("expiry-sweeper running", "interval", cfg.Interval, "retention", cfg.Retention, "locked", lock != nil)
	if err := sw.Run(runCtx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
		errtrack.Capture(err, nil)
		log.Error("sweeper stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
