package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ilinovom/stream-announce-bot/internal/model"
	"github.com/ilinovom/stream-announce-bot/internal/repository"
)

var (
	// ErrInvalidSubscription is returned when a new subscription lacks required fields.
	ErrInvalidSubscription = errors.New("invalid subscription")
	// ErrNotFound is returned when no subscription matches an update.
	ErrNotFound = errors.New("no matching subscription")
)

// StateStore owns the in-memory state document. Every mutation runs under
// one lock, is applied to a copy and only becomes visible once the copy has
// been persisted.
type StateStore struct {
	mu    sync.Mutex
	repo  repository.StateRepository
	state *model.State
}

// NewStateStore loads the document from repo.
func NewStateStore(ctx context.Context, repo repository.StateRepository) (*StateStore, error) {
	state, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	state.EnsureMaps()
	return &StateStore{repo: repo, state: state}, nil
}

// update applies fn to a copy of the document and persists it when fn
// reports a change.
func (s *StateStore) update(ctx context.Context, fn func(*model.State) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.Clone()
	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	s.state = next
	return nil
}

// Snapshot returns a deep copy of the current document.
func (s *StateStore) Snapshot() *model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddSubscription normalises and appends sub. Duplicates are allowed.
func (s *StateStore) AddSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	sub.User = model.NormalizeUser(sub.User)
	sub.DelaySec = model.ClampDelay(sub.DelaySec)
	if err := sub.Validate(); err != nil {
		return model.Subscription{}, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}
	err := s.update(ctx, func(st *model.State) (bool, error) {
		cp := sub
		st.Subscriptions = append(st.Subscriptions, &cp)
		return true, nil
	})
	if err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

// RemoveSubscriptions deletes every subscription matching the tuple and
// returns how many were removed.
func (s *StateStore) RemoveSubscriptions(ctx context.Context, guildID, channelID string, service model.Service, user string) (int, error) {
	user = model.NormalizeUser(user)
	removed := 0
	err := s.update(ctx, func(st *model.State) (bool, error) {
		kept := st.Subscriptions[:0]
		for _, sub := range st.Subscriptions {
			if sub.Matches(guildID, channelID, service, user) {
				removed++
				continue
			}
			kept = append(kept, sub)
		}
		st.Subscriptions = kept
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ListSubscriptions returns copies of the guild's subscriptions in insertion order.
func (s *StateStore) ListSubscriptions(guildID string) []model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Subscription{}
	for _, sub := range s.state.Subscriptions {
		if sub.GuildID == guildID {
			out = append(out, *sub)
		}
	}
	return out
}

// updateEach applies fn to every subscription selected by match.
func (s *StateStore) updateEach(ctx context.Context, match func(*model.Subscription) bool, fn func(*model.Subscription)) (int, error) {
	updated := 0
	err := s.update(ctx, func(st *model.State) (bool, error) {
		for _, sub := range st.Subscriptions {
			if match(sub) {
				fn(sub)
				updated++
			}
		}
		return updated > 0, nil
	})
	if err != nil {
		return 0, err
	}
	if updated == 0 {
		return 0, ErrNotFound
	}
	return updated, nil
}

// SetRole sets the mention role on every subscription for the creator in the guild.
func (s *StateStore) SetRole(ctx context.Context, guildID string, service model.Service, user, roleID string) (int, error) {
	user = model.NormalizeUser(user)
	return s.updateEach(ctx,
		func(sub *model.Subscription) bool { return sub.SameCreator(guildID, service, user) },
		func(sub *model.Subscription) { sub.RoleID = roleID })
}

// SetMessage sets the template on subscriptions matching the tuple.
func (s *StateStore) SetMessage(ctx context.Context, guildID, channelID string, service model.Service, user, template string) (int, error) {
	user = model.NormalizeUser(user)
	return s.updateEach(ctx,
		func(sub *model.Subscription) bool { return sub.Matches(guildID, channelID, service, user) },
		func(sub *model.Subscription) { sub.Template = template })
}

// SetDelay sets the clamped delay on every subscription for the creator in the guild.
func (s *StateStore) SetDelay(ctx context.Context, guildID string, service model.Service, user string, delaySec int) (int, error) {
	user = model.NormalizeUser(user)
	delaySec = model.ClampDelay(delaySec)
	return s.updateEach(ctx,
		func(sub *model.Subscription) bool { return sub.SameCreator(guildID, service, user) },
		func(sub *model.Subscription) { sub.DelaySec = delaySec })
}

// AdminRoles returns the guild's role allowlist.
func (s *StateStore) AdminRoles(guildID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.AdminRoles[guildID])
}

// AddAdminRole allowlists roleID. It reports false when the role was already present.
func (s *StateStore) AddAdminRole(ctx context.Context, guildID, roleID string) (bool, error) {
	added := false
	err := s.update(ctx, func(st *model.State) (bool, error) {
		if slices.Contains(st.AdminRoles[guildID], roleID) {
			return false, nil
		}
		st.AdminRoles[guildID] = append(st.AdminRoles[guildID], roleID)
		added = true
		return true, nil
	})
	return added && err == nil, err
}

// RemoveAdminRole drops roleID from the allowlist. It reports false when the role was not present.
func (s *StateStore) RemoveAdminRole(ctx context.Context, guildID, roleID string) (bool, error) {
	removed := false
	err := s.update(ctx, func(st *model.State) (bool, error) {
		roles := st.AdminRoles[guildID]
		idx := slices.Index(roles, roleID)
		if idx < 0 {
			return false, nil
		}
		st.AdminRoles[guildID] = slices.Delete(slices.Clone(roles), idx, idx+1)
		removed = true
		return true, nil
	})
	return removed && err == nil, err
}

// CommitRuntime replaces the runtime detection state with the one carried by
// runtime, drops entries of keys no longer subscribed and persists.
// Subscriptions and admin roles in runtime are ignored so that edits made
// while a cycle was probing are kept.
func (s *StateStore) CommitRuntime(ctx context.Context, runtime *model.State) error {
	return s.update(ctx, func(st *model.State) (bool, error) {
		rt := runtime.Clone()
		st.LiveCache = rt.LiveCache
		st.Pending = rt.Pending
		st.Announced = rt.Announced
		st.PruneRuntime()
		return true, nil
	})
}
