package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

func sampleState() *model.State {
	s := model.NewState()
	s.Subscriptions = []*model.Subscription{
		{GuildID: "g1", ChannelID: "c1", Service: model.ServiceTwitch, User: "alice", RoleID: "r1", DelaySec: 30},
		{GuildID: "g1", ChannelID: "c2", Service: model.ServiceKick, User: "bob", Template: "{user} live {url}"},
		{GuildID: "g2", ChannelID: "c3", Service: model.ServiceRumble, User: "carol", DelaySec: 300},
		{GuildID: "g1", ChannelID: "c1", Service: model.ServiceTwitch, User: "alice", DelaySec: 30},
	}
	s.LiveCache[model.NewLiveKey("g1", model.ServiceTwitch, "alice")] = true
	s.LiveCache[model.NewLiveKey("g2", model.ServiceRumble, "carol")] = false
	s.SetPending(model.NewLiveKey("g1", model.ServiceKick, "bob"), time.UnixMilli(1700000000123))
	s.MarkAnnounced(model.NewLiveKey("g1", model.ServiceKick, "bob"), "c2")
	s.AdminRoles["g1"] = []string{"r9", "r8"}
	return s
}

func TestFileStateRepository_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "subscriptions.json")
	repo := NewFileStateRepository(path)
	ctx := context.Background()

	want := sampleState()
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reload mismatch:\n got %#v\nwant %#v", got, want)
	}

	// Saving the reloaded document again must not change it.
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("second save: %v", err)
	}
	again, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !reflect.DeepEqual(again, want) {
		t.Fatalf("second reload mismatch")
	}
}

func TestFileStateRepository_MissingFile(t *testing.T) {
	repo := NewFileStateRepository(filepath.Join(t.TempDir(), "none.json"))
	s, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Subscriptions) != 0 || s.LiveCache == nil || s.Pending == nil || s.AdminRoles == nil {
		t.Fatalf("expected empty initialised state, got %#v", s)
	}
}

func TestFileStateRepository_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileStateRepository(filepath.Join(dir, "state.json"))
	if err := repo.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Fatalf("unexpected files: %v", entries)
	}
}

func TestDecodeState_DefaultsOptionalFields(t *testing.T) {
	doc := `{"subscriptions":[{"guildId":"g","channelId":"c","service":"twitch","user":"u","roleId":null,"template":null,"delaySec":0}]}`
	s, err := DecodeState(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(s.Subscriptions) != 1 || s.Subscriptions[0].RoleID != "" {
		t.Fatalf("unexpected subscriptions: %#v", s.Subscriptions)
	}
	if s.LiveCache == nil || s.Pending == nil || s.Announced == nil || s.AdminRoles == nil {
		t.Fatalf("optional maps not defaulted: %#v", s)
	}
}

func TestDecodeState_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"subscriptions":`,
		"no subscriptions": `{"liveCache":{}}`,
		"null entry":       `{"subscriptions":[null]}`,
		"unknown service":  `{"subscriptions":[{"guildId":"g","channelId":"c","service":"youtube","user":"u"}]}`,
		"missing channel":  `{"subscriptions":[{"guildId":"g","service":"kick","user":"u"}]}`,
		"delay too large":  `{"subscriptions":[{"guildId":"g","channelId":"c","service":"kick","user":"u","delaySec":301}]}`,
		"trailing garbage": `{"subscriptions":[]}garbage`,
		"second document":  `{"subscriptions":[]} {"subscriptions":[]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeState(strings.NewReader(doc))
			if !errors.Is(err, ErrMalformedState) {
				t.Fatalf("expected ErrMalformedState, got %v", err)
			}
		})
	}
}

func TestDecodeState_TrailingWhitespace(t *testing.T) {
	s, err := DecodeState(strings.NewReader("{\"subscriptions\":[]}\n\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(s.Subscriptions) != 0 {
		t.Fatalf("unexpected subscriptions: %#v", s.Subscriptions)
	}
}

func TestFileStateRepository_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"pending":{}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewFileStateRepository(path).Load(context.Background())
	if !errors.Is(err, ErrMalformedState) {
		t.Fatalf("expected ErrMalformedState, got %v", err)
	}
}

func TestSQLStateRepository_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "state.db")
	repo, err := NewSQLStateRepository("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	empty, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(empty.Subscriptions) != 0 {
		t.Fatalf("expected empty state")
	}

	want := sampleState()
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	want.Subscriptions = want.Subscriptions[:1]
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reload mismatch:\n got %#v\nwant %#v", got, want)
	}
}

func TestNewSQLStateRepository_UnknownDriver(t *testing.T) {
	if _, err := NewSQLStateRepository("mysql", "x"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
