package probe

import (
	"net/url"
	"regexp"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

// Twitch describes twitch.tv channel pages. baseURL overrides the page host
// when non-empty.
func Twitch(baseURL string) PageConfig {
	if baseURL == "" {
		baseURL = "https://www.twitch.tv"
	}
	return PageConfig{
		Service:      model.ServiceTwitch,
		PageURL:      func(user string) string { return baseURL + "/" + url.PathEscape(user) },
		CanonicalURL: func(user string) string { return "https://twitch.tv/" + user },
		Markers: []*regexp.Regexp{
			regexp.MustCompile(`(?i)isLiveBroadcast"?\s*:\s*true|"isLive"\s*:\s*true|data-test-selector="stream-info-card-component"`),
		},
	}
}

// Kick describes kick.com channel pages.
func Kick(baseURL string) PageConfig {
	if baseURL == "" {
		baseURL = "https://kick.com"
	}
	return PageConfig{
		Service:      model.ServiceKick,
		PageURL:      func(user string) string { return baseURL + "/" + url.PathEscape(user) },
		CanonicalURL: func(user string) string { return "https://kick.com/" + user },
		Markers: []*regexp.Regexp{
			regexp.MustCompile(`(?i)"is_live"\s*:\s*true|badge[^>]*>\s*Live\s*<`),
		},
	}
}

// Rumble describes rumble.com channel pages. The announced link is the
// fetched page itself.
func Rumble(baseURL string) PageConfig {
	if baseURL == "" {
		baseURL = "https://rumble.com"
	}
	pageURL := func(user string) string { return baseURL + "/c/" + url.PathEscape(user) }
	return PageConfig{
		Service:      model.ServiceRumble,
		PageURL:      pageURL,
		CanonicalURL: pageURL,
		Markers: []*regexp.Regexp{
			regexp.MustCompile(`(?i)isLive"?\s*:\s*true|badge--live|data-is-live="true"`),
		},
	}
}

// DefaultRegistry registers the twitch, kick and rumble probers sharing opts.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(NewPageProbe(Twitch(""), opts))
	r.Register(NewPageProbe(Kick(""), opts))
	r.Register(NewPageProbe(Rumble(""), opts))
	return r
}
