package frontend

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/pulse"
)

type PageData struct {
	Token        string
	AdvanceDelay int // milliseconds
	Feed         feed.Feed
}

// FeedPage renders the carousel. Only the first pulse is visible; static/feed.js walks
// the rest.
func FeedPage(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw(`<title>Your pulses</title><link rel="stylesheet" href="/static/styles.css"></head>`)
		p.raw(`<body data-token="`)
		p.text(data.Token)
		p.raw(`" data-advance-delay="`)
		p.text(strconv.Itoa(data.AdvanceDelay))
		p.raw(`"><main class="feed"><header><h1>Today</h1><p class="date">`)
		p.text(data.Feed.Date)
		p.raw(`</p></header>`)

		if len(data.Feed.PulseItems) == 0 {
			p.raw(`<p class="empty">Nothing to answer right now.</p>`)
		}
		for i, item := range data.Feed.PulseItems {
			if err := ctx.Err(); err != nil {
				return err
			}
			pulseCard(p, i, item)
		}
		p.raw(`<p class="done" hidden>All caught up.</p>`)
		p.raw(`</main><script src="/static/feed.js" defer></script></body></html>`)
		return p.err
	})
}

func pulseCard(p *printer, index int, item feed.Item) {
	p.raw(`<section class="pulse" data-ref-id="`)
	p.text(item.RefID)
	p.raw(`" data-type="`)
	p.text(string(item.Type))
	p.raw(`"`)
	if index > 0 {
		p.raw(` hidden`)
	}
	p.raw(`>`)

	switch {
	case item.Rating != nil:
		p.raw(`<h2>How was this resource?</h2><p class="meta">`)
		p.text(item.Rating.ResourceID)
		p.raw(`</p><div class="choices">`)
		for n := item.Rating.MinRating; n <= item.Rating.MaxRating; n++ {
			choice(p, strconv.Itoa(n), strconv.Itoa(n))
		}
		p.raw(`</div>`)
	case item.Connection != nil:
		p.raw(`<h2>Did you connect?</h2><p class="meta">`)
		p.text(item.Connection.ConnectionUserID)
		p.raw(`</p>`)
		yesNo(p)
	case item.Info != nil:
		p.raw(`<h2>`)
		p.text(item.Info.Title)
		p.raw(`</h2>`)
		if item.Info.ImageURL != "" {
			p.raw(`<img alt="" src="`)
			p.text(item.Info.ImageURL)
			p.raw(`">`)
		}
		p.raw(`<p>`)
		p.text(item.Info.Body)
		p.raw(`</p><p class="meta">Was this useful?</p>`)
		yesNo(p)
	case item.Question != nil:
		p.raw(`<h2>`)
		p.text(item.Question.Prompt)
		p.raw(`</h2>`)
		if len(item.Question.Options) == 0 {
			p.raw(`<form class="free-text"><input name="answer" maxlength="500" required><button type="submit">Send</button></form>`)
		} else {
			p.raw(`<div class="choices">`)
			for _, opt := range item.Question.Options {
				choice(p, strconv.Quote(opt), opt)
			}
			p.raw(`</div>`)
		}
	}
	if item.Type.Scheduled() {
		p.raw(`<button class="snooze" type="button">Later</button>`)
	}
	p.raw(`</section>`)
}

func yesNo(p *printer) {
	p.raw(`<div class="choices">`)
	choice(p, strconv.Quote(pulse.AnswerYes), "Yes")
	choice(p, strconv.Quote(pulse.AnswerNo), "No")
	p.raw(`</div>`)
}

// choice renders a button whose data-value is the JSON answer it submits.
func choice(p *printer, jsonValue, label string) {
	p.raw(`<button type="button" class="choice" data-value="`)
	p.text(jsonValue)
	p.raw(`">`)
	p.text(label)
	p.raw(`</button>`)
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}
