package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ilinovom/stream-announce-bot/internal/metrics"
	"github.com/ilinovom/stream-announce-bot/internal/model"
	"github.com/ilinovom/stream-announce-bot/internal/probe"
)

// ErrCycleInProgress is returned by RunCycle when another cycle is still running.
var ErrCycleInProgress = errors.New("detection cycle already in progress")

// Dispatcher delivers announcements to chat channels.
type Dispatcher interface {
	// ResolveChannel checks that the channel exists and is reachable.
	ResolveChannel(ctx context.Context, channelID string) error
	SendMessage(ctx context.Context, channelID, content string) error
}

// FailurePolicy decides what a failed delivery does to the session.
type FailurePolicy string

const (
	// PolicyConfirm counts a failed delivery as announced.
	PolicyConfirm FailurePolicy = "confirm"
	// PolicyRetry leaves the delivery pending so the next cycle sends again.
	PolicyRetry FailurePolicy = "retry"
)

// ParseFailurePolicy validates a policy name.
func ParseFailurePolicy(name string) (FailurePolicy, error) {
	switch p := FailurePolicy(name); p {
	case PolicyConfirm, PolicyRetry:
		return p, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", name)
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	// Policy defaults to PolicyConfirm.
	Policy FailurePolicy
	// Now overrides the clock.
	Now func() time.Time
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *EngineConfig) defaults() {
	if c.Policy == "" {
		c.Policy = PolicyConfirm
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine runs detection cycles: probe every subscribed creator, advance the
// per-key live state and send the announcements that became due.
type Engine struct {
	store      *StateStore
	probes     *probe.Registry
	dispatcher Dispatcher
	cfg        EngineConfig

	cycleMu sync.Mutex
}

func NewEngine(store *StateStore, probes *probe.Registry, dispatcher Dispatcher, cfg EngineConfig) *Engine {
	cfg.defaults()
	return &Engine{store: store, probes: probes, dispatcher: dispatcher, cfg: cfg}
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Subscriptions int
	Live          int
	Sent          int
	Failed        int
	Pending       int
}

// EffectiveDelay is the debounce applied to sub, capped at MaxDelaySec.
func EffectiveDelay(sub *model.Subscription) time.Duration {
	return time.Duration(model.ClampDelay(sub.DelaySec)) * time.Second
}

// RunCycle runs one detection cycle. It returns ErrCycleInProgress without
// doing anything if a cycle is already running, and the persistence error
// if the new state could not be saved.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	if !e.cycleMu.TryLock() {
		metrics.CycleSkipped()
		return CycleResult{}, ErrCycleInProgress
	}
	defer e.cycleMu.Unlock()

	start := time.Now()
	log := e.cfg.Logger.With("cycle", uuid.NewString())

	state := e.store.Snapshot()
	results := e.probeAll(ctx, log, state.Subscriptions)
	now := e.cfg.Now()
	res := e.evaluate(ctx, log, state, results, now)

	if err := e.store.CommitRuntime(ctx, state); err != nil {
		log.Error("failed to persist cycle state", "error", err)
		return res, err
	}

	confirmed := 0
	for _, live := range state.LiveCache {
		if live {
			confirmed++
		}
	}
	metrics.CycleDone(time.Since(start), res.Subscriptions, confirmed, len(state.Pending))
	log.Debug("cycle complete",
		"subscriptions", res.Subscriptions,
		"live", res.Live,
		"sent", res.Sent,
		"failed", res.Failed,
		"pending", res.Pending,
		"duration", time.Since(start))
	return res, nil
}

// probeAll invokes each service's prober once with the distinct usernames
// subscribed on it. Services are probed in parallel and every result is
// collected before returning.
func (e *Engine) probeAll(ctx context.Context, log *slog.Logger, subs []*model.Subscription) map[model.Service]map[string]model.LiveDescriptor {
	users := make(map[model.Service][]string)
	for _, sub := range subs {
		if !slices.Contains(users[sub.Service], sub.User) {
			users[sub.Service] = append(users[sub.Service], sub.User)
		}
	}

	results := make(map[model.Service]map[string]model.LiveDescriptor, len(users))
	var mu sync.Mutex
	var g errgroup.Group
	for service, names := range users {
		prober, err := e.probes.Get(service)
		if err != nil {
			log.Warn("skipping service", "service", service, "error", err)
			continue
		}
		g.Go(func() error {
			live := prober.Probe(ctx, names)
			mu.Lock()
			results[service] = live
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// evaluate advances state for every subscription. Each subscription is
// judged on its own so that subscriptions sharing a key, even in the same
// channel, announce after their own delay. A key becomes confirmed once every
// subscription of the key has been announced.
func (e *Engine) evaluate(ctx context.Context, log *slog.Logger, state *model.State, results map[model.Service]map[string]model.LiveDescriptor, now time.Time) CycleResult {
	res := CycleResult{Subscriptions: len(state.Subscriptions)}
	byKey := make(map[model.LiveKey][]*model.Subscription)
	var keys []model.LiveKey
	ids := state.DeliveryIDs()

	for _, sub := range state.Subscriptions {
		key := sub.Key()
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], sub)

		info, isLive := results[sub.Service][sub.User]
		if !isLive {
			state.SetOffline(key)
			continue
		}
		res.Live++

		if state.LiveCache[key] {
			delete(state.Pending, key)
			delete(state.Announced, key)
			continue
		}

		since, ok := state.PendingSince(key)
		if !ok {
			since = now
			state.SetPending(key, now)
			log.Info("creator observed live", "key", key, "url", info.URL)
		}
		if state.WasAnnounced(key, ids[sub]) {
			continue
		}
		if now.Sub(since) < EffectiveDelay(sub) {
			continue
		}

		if err := e.deliver(ctx, sub, info); err != nil {
			res.Failed++
			metrics.Announcement(string(sub.Service), "failed")
			log.Warn("announcement failed",
				"key", key,
				"channel", sub.ChannelID,
				"policy", e.cfg.Policy,
				"error", err)
			if e.cfg.Policy == PolicyRetry {
				continue
			}
		} else {
			res.Sent++
			metrics.Announcement(string(sub.Service), "sent")
			log.Info("announcement sent", "key", key, "channel", sub.ChannelID)
		}
		state.MarkAnnounced(key, ids[sub])
	}

	for _, key := range keys {
		if _, pending := state.Pending[key]; !pending {
			continue
		}
		done := true
		for _, sub := range byKey[key] {
			if !state.WasAnnounced(key, ids[sub]) {
				done = false
				break
			}
		}
		if done {
			state.Confirm(key)
		} else {
			res.Pending++
		}
	}
	return res
}

// deliver renders sub's announcement and sends it to its channel.
func (e *Engine) deliver(ctx context.Context, sub *model.Subscription, info model.LiveDescriptor) error {
	if err := e.dispatcher.ResolveChannel(ctx, sub.ChannelID); err != nil {
		return fmt.Errorf("resolve channel %s: %w", sub.ChannelID, err)
	}
	content := FormatAnnouncement(sub.Template, AnnouncementContext{
		Role:    MentionRole(sub.RoleID),
		User:    sub.User,
		Service: string(sub.Service),
		Title:   info.Title,
		URL:     info.URL,
	})
	if err := e.dispatcher.SendMessage(ctx, sub.ChannelID, content); err != nil {
		return fmt.Errorf("send to %s: %w", sub.ChannelID, err)
	}
	return nil
}
