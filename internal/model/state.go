package model

import (
	"slices"
	"time"
)

// State is the durable document: subscriptions, per-key runtime detection
// state and the per-guild admin role allowlist.
type State struct {
	Subscriptions []*Subscription `json:"subscriptions"`
	// LiveCache holds the confirmed-live flag per key.
	LiveCache map[LiveKey]bool `json:"liveCache"`
	// Pending holds the first live observation per key, unix milliseconds.
	Pending map[LiveKey]int64 `json:"pending"`
	// Announced holds the delivery ids (see Subscription.DeliveryID) already
	// handled for a key that is not yet confirmed.
	Announced  map[LiveKey][]string `json:"announced"`
	AdminRoles map[string][]string  `json:"adminRoles"`
}

// NewState returns an empty document.
func NewState() *State {
	s := &State{Subscriptions: []*Subscription{}}
	s.EnsureMaps()
	return s
}

// EnsureMaps replaces nil maps with empty ones.
func (s *State) EnsureMaps() {
	if s.Subscriptions == nil {
		s.Subscriptions = []*Subscription{}
	}
	if s.LiveCache == nil {
		s.LiveCache = map[LiveKey]bool{}
	}
	if s.Pending == nil {
		s.Pending = map[LiveKey]int64{}
	}
	if s.Announced == nil {
		s.Announced = map[LiveKey][]string{}
	}
	if s.AdminRoles == nil {
		s.AdminRoles = map[string][]string{}
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{
		Subscriptions: make([]*Subscription, 0, len(s.Subscriptions)),
		LiveCache:     make(map[LiveKey]bool, len(s.LiveCache)),
		Pending:       make(map[LiveKey]int64, len(s.Pending)),
		Announced:     make(map[LiveKey][]string, len(s.Announced)),
		AdminRoles:    make(map[string][]string, len(s.AdminRoles)),
	}
	for _, sub := range s.Subscriptions {
		cp := *sub
		c.Subscriptions = append(c.Subscriptions, &cp)
	}
	for k, v := range s.LiveCache {
		c.LiveCache[k] = v
	}
	for k, v := range s.Pending {
		c.Pending[k] = v
	}
	for k, v := range s.Announced {
		c.Announced[k] = slices.Clone(v)
	}
	for k, v := range s.AdminRoles {
		c.AdminRoles[k] = slices.Clone(v)
	}
	return c
}

// PendingSince returns the first live observation recorded for key.
func (s *State) PendingSince(key LiveKey) (time.Time, bool) {
	ms, ok := s.Pending[key]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// SetPending records t as the first live observation for key.
func (s *State) SetPending(key LiveKey, t time.Time) {
	s.Pending[key] = t.UnixMilli()
}

// DeliveryIDs returns the delivery id of every subscription in the document.
func (s *State) DeliveryIDs() map[*Subscription]string {
	ids := make(map[*Subscription]string, len(s.Subscriptions))
	seen := make(map[Subscription]int, len(s.Subscriptions))
	for _, sub := range s.Subscriptions {
		ids[sub] = sub.DeliveryID(seen[*sub])
		seen[*sub]++
	}
	return ids
}

// WasAnnounced reports whether the delivery id was already handled for key.
func (s *State) WasAnnounced(key LiveKey, id string) bool {
	return slices.Contains(s.Announced[key], id)
}

// MarkAnnounced records the delivery id as handled for key.
func (s *State) MarkAnnounced(key LiveKey, id string) {
	if !s.WasAnnounced(key, id) {
		s.Announced[key] = append(s.Announced[key], id)
	}
}

// Confirm marks key live and announced, ending its pending phase.
func (s *State) Confirm(key LiveKey) {
	s.LiveCache[key] = true
	delete(s.Pending, key)
	delete(s.Announced, key)
}

// SetOffline resets key to offline.
func (s *State) SetOffline(key LiveKey) {
	s.LiveCache[key] = false
	delete(s.Pending, key)
	delete(s.Announced, key)
}

// PruneRuntime drops runtime entries for keys no subscription refers to.
func (s *State) PruneRuntime() {
	keys := make(map[LiveKey]struct{}, len(s.Subscriptions))
	for _, sub := range s.Subscriptions {
		keys[sub.Key()] = struct{}{}
	}
	for k := range s.LiveCache {
		if _, ok := keys[k]; !ok {
			delete(s.LiveCache, k)
		}
	}
	for k := range s.Pending {
		if _, ok := keys[k]; !ok {
			delete(s.Pending, k)
		}
	}
	for k := range s.Announced {
		if _, ok := keys[k]; !ok {
			delete(s.Announced, k)
		}
	}
}
