package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ilinovom/stream-announce-bot/internal/model"
	"github.com/ilinovom/stream-announce-bot/internal/repository"
)

type memRepo struct {
	saved *model.State
	saves int
	err   error
}

var _ repository.StateRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{}
}

func (m *memRepo) Load(ctx context.Context) (*model.State, error) {
	if m.saved == nil {
		return model.NewState(), nil
	}
	return m.saved.Clone(), nil
}

func (m *memRepo) Save(ctx context.Context, state *model.State) error {
	if m.err != nil {
		return m.err
	}
	m.saved = state.Clone()
	m.saves++
	return nil
}

func newTestStore(t *testing.T, repo *memRepo) *StateStore {
	t.Helper()
	store, err := NewStateStore(context.Background(), repo)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStateStore_AddListRemove(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()

	sub, err := store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c1", Service: model.ServiceTwitch, User: " Alice ", DelaySec: 900})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sub.User != "alice" || sub.DelaySec != model.MaxDelaySec {
		t.Fatalf("not normalised: %#v", sub)
	}
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c1", Service: model.ServiceTwitch, User: "alice"})
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c2", Service: model.ServiceTwitch, User: "alice"})
	store.AddSubscription(ctx, model.Subscription{GuildID: "other", ChannelID: "c9", Service: model.ServiceKick, User: "bob"})

	if got := store.ListSubscriptions("g"); len(got) != 3 || got[2].ChannelID != "c2" {
		t.Fatalf("unexpected list: %#v", got)
	}
	if repo.saves != 4 {
		t.Fatalf("expected a save per add, got %d", repo.saves)
	}

	n, err := store.RemoveSubscriptions(ctx, "g", "c1", model.ServiceTwitch, "ALICE")
	if err != nil || n != 2 {
		t.Fatalf("remove: n=%d err=%v", n, err)
	}
	if got := store.ListSubscriptions("g"); len(got) != 1 || got[0].ChannelID != "c2" {
		t.Fatalf("unexpected list after remove: %#v", got)
	}
	n, err = store.RemoveSubscriptions(ctx, "g", "c1", model.ServiceTwitch, "alice")
	if err != nil || n != 0 {
		t.Fatalf("second remove: n=%d err=%v", n, err)
	}
	if len(repo.saved.Subscriptions) != 2 {
		t.Fatalf("persisted state out of sync: %#v", repo.saved.Subscriptions)
	}
}

func TestStateStore_AddInvalid(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	_, err := store.AddSubscription(context.Background(), model.Subscription{GuildID: "g", ChannelID: "c", Service: "youtube", User: "u"})
	if !errors.Is(err, ErrInvalidSubscription) {
		t.Fatalf("expected ErrInvalidSubscription, got %v", err)
	}
}

func TestStateStore_Updates(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c1", Service: model.ServiceKick, User: "bob"})
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c2", Service: model.ServiceKick, User: "bob"})

	if n, err := store.SetRole(ctx, "g", model.ServiceKick, "Bob", "r1"); err != nil || n != 2 {
		t.Fatalf("set role: n=%d err=%v", n, err)
	}
	if n, err := store.SetDelay(ctx, "g", model.ServiceKick, "bob", -5); err != nil || n != 2 {
		t.Fatalf("set delay: n=%d err=%v", n, err)
	}
	if n, err := store.SetMessage(ctx, "g", "c2", model.ServiceKick, "bob", "{user}!"); err != nil || n != 1 {
		t.Fatalf("set message: n=%d err=%v", n, err)
	}
	if _, err := store.SetRole(ctx, "g", model.ServiceTwitch, "bob", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	subs := store.ListSubscriptions("g")
	for _, s := range subs {
		if s.RoleID != "r1" || s.DelaySec != 0 {
			t.Fatalf("update not applied: %#v", s)
		}
	}
	if subs[0].Template != "" || subs[1].Template != "{user}!" {
		t.Fatalf("template applied to wrong subscription: %#v", subs)
	}
}

func TestStateStore_AdminRoles(t *testing.T) {
	store := newTestStore(t, newMemRepo())
	ctx := context.Background()

	if added, err := store.AddAdminRole(ctx, "g", "r1"); err != nil || !added {
		t.Fatalf("add: %v %v", added, err)
	}
	if added, _ := store.AddAdminRole(ctx, "g", "r1"); added {
		t.Fatalf("duplicate role added")
	}
	store.AddAdminRole(ctx, "g", "r2")
	if got := store.AdminRoles("g"); len(got) != 2 || got[0] != "r1" {
		t.Fatalf("roles = %v", got)
	}
	if removed, err := store.RemoveAdminRole(ctx, "g", "r1"); err != nil || !removed {
		t.Fatalf("remove: %v %v", removed, err)
	}
	if removed, _ := store.RemoveAdminRole(ctx, "g", "r1"); removed {
		t.Fatalf("removed missing role")
	}
	if got := store.AdminRoles("g"); len(got) != 1 || got[0] != "r2" {
		t.Fatalf("roles = %v", got)
	}
}

func TestStateStore_PersistFailureKeepsMemory(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c", Service: model.ServiceRumble, User: "carol"})

	repo.err = errors.New("disk full")
	if _, err := store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c", Service: model.ServiceRumble, User: "dave"}); err == nil {
		t.Fatalf("expected persist error")
	}
	if _, err := store.SetDelay(ctx, "g", model.ServiceRumble, "carol", 60); err == nil {
		t.Fatalf("expected persist error")
	}
	subs := store.ListSubscriptions("g")
	if len(subs) != 1 || subs[0].DelaySec != 0 {
		t.Fatalf("memory diverged from disk: %#v", subs)
	}
}

func TestStateStore_CommitRuntimeKeepsConcurrentEdits(t *testing.T) {
	repo := newMemRepo()
	store := newTestStore(t, repo)
	ctx := context.Background()
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c", Service: model.ServiceTwitch, User: "alice"})
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c", Service: model.ServiceTwitch, User: "gone"})

	runtime := store.Snapshot()
	aliceKey := model.NewLiveKey("g", model.ServiceTwitch, "alice")
	goneKey := model.NewLiveKey("g", model.ServiceTwitch, "gone")
	runtime.SetPending(aliceKey, time.UnixMilli(1000))
	runtime.LiveCache[goneKey] = true

	// An admin edit lands while the cycle is running.
	store.RemoveSubscriptions(ctx, "g", "c", model.ServiceTwitch, "gone")
	store.AddSubscription(ctx, model.Subscription{GuildID: "g", ChannelID: "c", Service: model.ServiceKick, User: "bob"})

	if err := store.CommitRuntime(ctx, runtime); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got := store.Snapshot()
	if len(got.Subscriptions) != 2 || got.Subscriptions[1].User != "bob" {
		t.Fatalf("admin edits lost: %#v", got.Subscriptions)
	}
	if _, ok := got.Pending[aliceKey]; !ok {
		t.Fatalf("runtime state not committed")
	}
	if _, ok := got.LiveCache[goneKey]; ok {
		t.Fatalf("runtime state of removed subscription not pruned")
	}
	if repo.saved.Pending[aliceKey] != 1000 {
		t.Fatalf("runtime state not persisted")
	}
}
