// Package profile mirrors the remote user document of the signed in user.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gilby125/flight-connections/identity"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ErrNotFound is returned when no document exists for a user.
var ErrNotFound = errors.New("user document not found")

// Profile is a user document.
type Profile struct {
	Email          string
	DisplayName    string
	FirstName      string
	LastName       string
	PhotoURL       string
	IsAnonymous    bool
	LinkedProvider string
	LinkedAt       *timestamppb.Timestamp
	CreatedAt      *timestamppb.Timestamp
	LastActiveAt   *timestamppb.Timestamp
}

type document struct {
	Email          string     `json:"email,omitempty"`
	DisplayName    string     `json:"displayName,omitempty"`
	FirstName      string     `json:"firstName,omitempty"`
	LastName       string     `json:"lastName,omitempty"`
	PhotoURL       string     `json:"photoURL,omitempty"`
	IsAnonymous    bool       `json:"isAnonymous"`
	LinkedProvider string     `json:"linkedProvider,omitempty"`
	LinkedAt       *time.Time `json:"linkedAt,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	LastActiveAt   *time.Time `json:"lastActiveAt,omitempty"`
}

func toTime(ts *timestamppb.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.AsTime()
	return &t
}

func toTimestamp(t *time.Time) *timestamppb.Timestamp {
	if t == nil {
		return nil
	}
	return timestamppb.New(*t)
}

// MarshalJSON encodes timestamps as RFC 3339 strings.
func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		PhotoURL:       p.PhotoURL,
		IsAnonymous:    p.IsAnonymous,
		LinkedProvider: p.LinkedProvider,
		LinkedAt:       toTime(p.LinkedAt),
		CreatedAt:      toTime(p.CreatedAt),
		LastActiveAt:   toTime(p.LastActiveAt),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Profile) UnmarshalJSON(raw []byte) error {
	var d document
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	*p = Profile{
		Email:          d.Email,
		DisplayName:    d.DisplayName,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		PhotoURL:       d.PhotoURL,
		IsAnonymous:    d.IsAnonymous,
		LinkedProvider: d.LinkedProvider,
		LinkedAt:       toTimestamp(d.LinkedAt),
		CreatedAt:      toTimestamp(d.CreatedAt),
		LastActiveAt:   toTimestamp(d.LastActiveAt),
	}
	return nil
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.LinkedAt = cloneTimestamp(p.LinkedAt)
	cp.CreatedAt = cloneTimestamp(p.CreatedAt)
	cp.LastActiveAt = cloneTimestamp(p.LastActiveAt)
	return &cp
}

func cloneTimestamp(ts *timestamppb.Timestamp) *timestamppb.Timestamp {
	if ts == nil {
		return nil
	}
	return proto.Clone(ts).(*timestamppb.Timestamp)
}

// Update is a merge write. Nil fields are left untouched.
type Update struct {
	Email          *string
	DisplayName    *string
	FirstName      *string
	LastName       *string
	PhotoURL       *string
	IsAnonymous    *bool
	LinkedProvider *string
	LinkedAt       *time.Time
	CreatedAt      *time.Time
	LastActiveAt   *time.Time
}

// Apply merges u into p.
func (u Update) Apply(p *Profile) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&p.Email, u.Email)
	setString(&p.DisplayName, u.DisplayName)
	setString(&p.FirstName, u.FirstName)
	setString(&p.LastName, u.LastName)
	setString(&p.PhotoURL, u.PhotoURL)
	setString(&p.LinkedProvider, u.LinkedProvider)
	if u.IsAnonymous != nil {
		p.IsAnonymous = *u.IsAnonymous
	}
	if u.LinkedAt != nil {
		p.LinkedAt = timestamppb.New(*u.LinkedAt)
	}
	if u.CreatedAt != nil {
		p.CreatedAt = timestamppb.New(*u.CreatedAt)
	}
	if u.LastActiveAt != nil {
		p.LastActiveAt = timestamppb.New(*u.LastActiveAt)
	}
}

// UpdateFromUser builds the merge write for a signed in identity. Empty
// identity fields are omitted so they never overwrite stored values.
func UpdateFromUser(u identity.User) Update {
	opt := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	anon := u.IsAnonymous
	upd := Update{
		Email:          opt(u.Email),
		DisplayName:    opt(u.DisplayName),
		PhotoURL:       opt(u.PhotoURL),
		IsAnonymous:    &anon,
		LinkedProvider: opt(u.Provider),
	}
	if parts := strings.Fields(u.DisplayName); len(parts) > 0 {
		upd.FirstName = opt(parts[0])
		upd.LastName = opt(strings.Join(parts[1:], " "))
	}
	return upd
}

// Subscription is a live document feed.
type Subscription interface {
	Close() error
}

// Store persists user documents.
type Store interface {
	Get(ctx context.Context, uid string) (*Profile, error)
	Upsert(ctx context.Context, uid string, u Update) error
	// Subscribe calls fn with the current document, then on every change.
	// A missing document is delivered as nil.
	Subscribe(ctx context.Context, uid string, fn func(*Profile, error)) (Subscription, error)
}
