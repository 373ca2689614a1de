package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ilinovom/stream-announce-bot/internal/metrics"
	"github.com/ilinovom/stream-announce-bot/internal/model"
)

// Options tunes how pages are fetched.
type Options struct {
	// Timeout bounds one request. Default: 15s.
	Timeout time.Duration
	// Concurrency caps parallel requests within one Probe call. Default: 8.
	Concurrency int
	// UserAgent sent with requests. Default: "Mozilla/5.0".
	UserAgent string
	// MaxBytes caps the body read per page. Default: 5MB.
	MaxBytes int64
	// Limiter, when set, is waited on before every request. It may be
	// shared by several probers.
	Limiter *rate.Limiter
	// Client overrides the HTTP client.
	Client *http.Client
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0"
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 5 * 1024 * 1024
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// PageConfig describes where a service's creator page lives and what marks
// it as live.
type PageConfig struct {
	Service model.Service
	// PageURL is the page fetched for a username.
	PageURL func(user string) string
	// CanonicalURL is the link put into announcements.
	CanonicalURL func(user string) string
	// Markers match anywhere in the page body; any match means live.
	Markers []*regexp.Regexp
}

// PageProbe fetches each creator's public page and looks for live markers.
type PageProbe struct {
	page PageConfig
	opts Options
}

// NewPageProbe creates a prober for page.
func NewPageProbe(page PageConfig, opts Options) *PageProbe {
	opts.defaults()
	return &PageProbe{page: page, opts: opts}
}

func (p *PageProbe) Service() model.Service { return p.page.Service }

// Probe checks every username concurrently, at most opts.Concurrency at a time.
func (p *PageProbe) Probe(ctx context.Context, usernames []string) map[string]model.LiveDescriptor {
	live := make(map[string]model.LiveDescriptor)
	if len(usernames) == 0 {
		return live
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for _, user := range usernames {
		g.Go(func() error {
			desc, ok, err := p.check(ctx, user)
			switch {
			case err != nil:
				metrics.ProbeRequest(string(p.page.Service), "error")
				p.opts.Logger.Debug("probe failed", "service", p.page.Service, "user", user, "error", err)
			case ok:
				metrics.ProbeRequest(string(p.page.Service), "live")
				mu.Lock()
				live[user] = desc
				mu.Unlock()
			default:
				metrics.ProbeRequest(string(p.page.Service), "offline")
			}
			return nil
		})
	}
	_ = g.Wait()
	return live
}

// check fetches one page. It reports whether the creator is live.
func (p *PageProbe) check(ctx context.Context, user string) (model.LiveDescriptor, bool, error) {
	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			return model.LiveDescriptor{}, false, fmt.Errorf("rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.page.PageURL(user), nil)
	if err != nil {
		return model.LiveDescriptor{}, false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return model.LiveDescriptor{}, false, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.LiveDescriptor{}, false, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.opts.MaxBytes))
	if err != nil {
		return model.LiveDescriptor{}, false, fmt.Errorf("read body: %w", err)
	}

	if !p.isLive(body) {
		return model.LiveDescriptor{}, false, nil
	}
	return model.LiveDescriptor{
		Title:   extractTitle(body),
		URL:     p.page.CanonicalURL(user),
		Service: p.page.Service,
	}, true, nil
}

func (p *PageProbe) isLive(body []byte) bool {
	for _, m := range p.page.Markers {
		if m.Match(body) {
			return true
		}
	}
	return false
}

// extractTitle returns the og:title (or twitter:title) meta content of an
// HTML page, or "" when there is none.
func extractTitle(body []byte) string {
	var fallback string
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return fallback
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			var key, content string
			for _, a := range tok.Attr {
				switch a.Key {
				case "property", "name":
					key = strings.ToLower(a.Val)
				case "content":
					content = strings.TrimSpace(a.Val)
				}
			}
			switch key {
			case "og:title":
				if content != "" {
					return content
				}
			case "twitter:title":
				if fallback == "" {
					fallback = content
				}
			}
		}
	}
}
