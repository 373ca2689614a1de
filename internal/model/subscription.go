package model

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
)

// ErrUnknownService is returned for service names outside Services.
var ErrUnknownService = errors.New("unknown service")

// Service identifies a streaming platform a creator can be tracked on.
type Service string

const (
	ServiceTwitch Service = "twitch"
	ServiceKick   Service = "kick"
	ServiceRumble Service = "rumble"
)

// Services lists the supported services in display order.
var Services = []Service{ServiceTwitch, ServiceKick, ServiceRumble}

// Valid reports whether s is one of the supported services.
func (s Service) Valid() bool {
	for _, known := range Services {
		if s == known {
			return true
		}
	}
	return false
}

// ParseService normalises and validates a service name.
func ParseService(name string) (Service, error) {
	s := Service(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownService, name)
	}
	return s, nil
}

// MaxDelaySec is the upper bound for an announcement delay.
const MaxDelaySec = 300

// ClampDelay bounds sec to [0, MaxDelaySec].
func ClampDelay(sec int) int {
	if sec < 0 {
		return 0
	}
	if sec > MaxDelaySec {
		return MaxDelaySec
	}
	return sec
}

// NormalizeUser lowercases a creator username.
func NormalizeUser(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}

// Subscription is one announcement rule: when User goes live on Service,
// post into ChannelID of GuildID.
type Subscription struct {
	GuildID   string  `json:"guildId"`
	ChannelID string  `json:"channelId"`
	Service   Service `json:"service"`
	User      string  `json:"user"`
	RoleID    string  `json:"roleId,omitempty"`
	Template  string  `json:"template,omitempty"`
	DelaySec  int     `json:"delaySec"`
}

// Key returns the detection key shared by every subscription of the same
// creator within a guild.
func (s *Subscription) Key() LiveKey {
	return NewLiveKey(s.GuildID, s.Service, s.User)
}

// Matches reports whether s is addressed by the (guild, channel, service, user) tuple.
func (s *Subscription) Matches(guildID, channelID string, service Service, user string) bool {
	return s.GuildID == guildID && s.ChannelID == channelID && s.Service == service && s.User == user
}

// SameCreator reports whether s tracks user on service within guildID,
// regardless of the target channel.
func (s *Subscription) SameCreator(guildID string, service Service, user string) bool {
	return s.GuildID == guildID && s.Service == service && s.User == user
}

// Validate checks the fields a persisted subscription cannot do without.
func (s *Subscription) Validate() error {
	switch {
	case s.GuildID == "":
		return fmt.Errorf("missing guildId")
	case s.ChannelID == "":
		return fmt.Errorf("missing channelId")
	case !s.Service.Valid():
		return fmt.Errorf("unknown service %q", s.Service)
	case s.User == "":
		return fmt.Errorf("missing user")
	case s.DelaySec < 0 || s.DelaySec > MaxDelaySec:
		return fmt.Errorf("delaySec %d out of range 0-%d", s.DelaySec, MaxDelaySec)
	}
	return nil
}

// DeliveryID identifies s among the subscriptions sharing its key. nth
// counts the earlier subscriptions with an identical record, so exact
// duplicates still get distinct ids.
func (s *Subscription) DeliveryID(nth int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%d", s.RoleID, s.Template, s.DelaySec)
	id := fmt.Sprintf("%s:%016x", s.ChannelID, h.Sum64())
	if nth > 0 {
		id += fmt.Sprintf("#%d", nth)
	}
	return id
}

// LiveKey is the "guild:service:user" identity detection state is tracked by.
type LiveKey string

func NewLiveKey(guildID string, service Service, user string) LiveKey {
	return LiveKey(guildID + ":" + string(service) + ":" + user)
}

// LiveDescriptor describes a creator observed live during one cycle.
type LiveDescriptor struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Service Service `json:"service"`
}
