package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

// ErrMalformedState is returned when a stored document cannot be trusted.
var ErrMalformedState = errors.New("malformed state document")

// StateRepository abstracts persistence of the whole state document.
// Load returns an empty document when nothing has been stored yet.
type StateRepository interface {
	Load(ctx context.Context) (*model.State, error)
	Save(ctx context.Context, state *model.State) error
}

// stateDocument mirrors model.State with subscriptions as a pointer so an
// absent field can be told apart from an empty list.
type stateDocument struct {
	Subscriptions *[]*model.Subscription     `json:"subscriptions"`
	LiveCache     map[model.LiveKey]bool     `json:"liveCache"`
	Pending       map[model.LiveKey]int64    `json:"pending"`
	Announced     map[model.LiveKey][]string `json:"announced"`
	AdminRoles    map[string][]string        `json:"adminRoles"`
}

// DecodeState reads and validates a state document. Optional maps default to
// empty; a missing subscriptions field or an invalid subscription is an error.
func DecodeState(r io.Reader) (*model.State, error) {
	var doc stateDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedState)
	}
	if doc.Subscriptions == nil {
		return nil, fmt.Errorf("%w: missing subscriptions", ErrMalformedState)
	}
	for i, sub := range *doc.Subscriptions {
		if sub == nil {
			return nil, fmt.Errorf("%w: subscription %d is null", ErrMalformedState, i)
		}
		if err := sub.Validate(); err != nil {
			return nil, fmt.Errorf("%w: subscription %d: %v", ErrMalformedState, i, err)
		}
	}
	state := &model.State{
		Subscriptions: *doc.Subscriptions,
		LiveCache:     doc.LiveCache,
		Pending:       doc.Pending,
		Announced:     doc.Announced,
		AdminRoles:    doc.AdminRoles,
	}
	state.EnsureMaps()
	return state, nil
}

// EncodeState writes state as indented JSON.
func EncodeState(w io.Writer, state *model.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
