package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/presenter"
	platformauth "github.com/pulsefeed/project/internal/platform/auth"
	"github.com/pulsefeed/project/internal/platform/config"
	"github.com/pulsefeed/project/internal/platform/logger"
)

type clientConfig struct {
	LogMode      string        `env:"LOG_MODE" envDefault:"dev"`
	APIBase      string        `env:"PULSE_API_BASE" envDefault:"http://localhost:8080"`
	Token        string        `env:"PULSE_TOKEN"`
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"dev-insecure-change-me"`
	UserID       string        `env:"PULSE_USER_ID" envDefault:"demo-user"`
	Auto         bool          `env:"FEED_CLIENT_AUTO"`
	AdvanceDelay time.Duration `env:"ADVANCE_DELAY" envDefault:"600ms"`
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg clientConfig
	if err := config.Parse(&cfg); err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		// Local development only: mint a token with the shared secret.
		token, err = platformauth.NewManager(cfg.JWTSecret, time.Hour).Sign(cfg.UserID, cfg.UserID)
		if err != nil {
			log.Fatal("sign dev token failed", "error", err)
		}
	}

	client := presenter.NewClient(cfg.APIBase, token)
	snapshots := make(chan presenter.Snapshot, 8)
	p := presenter.New(client.Submit)
	p.AdvanceDelay = cfg.AdvanceDelay
	p.OnChange = func(s presenter.Snapshot) { snapshots <- s }
	p.OnSubmitError = func(item feed.Item, err error) {
		log.Warn("submission failed", "ref_id", item.RefID, "type", item.Type, "error", err)
	}
	defer func() {
		p.Close()
		p.Wait()
	}()

	if err := p.Refresh(runCtx, client.FetchFeed); err != nil {
		log.Warn("feed unavailable, showing nothing", "error", err)
	}

	input := bufio.NewScanner(os.Stdin)
	for {
		var snap presenter.Snapshot
		select {
		case <-runCtx.Done():
			return
		case snap = <-snapshots:
		}

		switch snap.State {
		case presenter.Idle:
			fmt.Println("All caught up.")
			return
		case presenter.Showing:
			if !answerCurrent(p, snap, input, cfg.Auto, log) {
				return
			}
		}
	}
}

// answerCurrent returns false once stdin is exhausted.
func answerCurrent(p *presenter.Presenter, snap presenter.Snapshot, input *bufio.Scanner, auto bool, log *logger.Logger) bool {
	item := *snap.Item
	fmt.Printf("[%d/%d] %s\n", snap.Index+1, snap.Total, presenter.Prompt(item))
	for {
		var value []byte
		if auto {
			value = presenter.AutoAnswer(item)
			fmt.Printf("> %s\n", value)
		} else {
			fmt.Print("> ")
			if !input.Scan() {
				return false
			}
			parsed, err := presenter.ParseAnswer(item, input.Text())
			if err != nil {
				fmt.Println(err)
				continue
			}
			value = parsed
		}
		if err := p.Answer(value); err != nil {
			log.Warn("answer rejected", "error", err)
		}
		return true
	}
}
