package storage

import (
	"context"
	"errors"
	"time"
)

// ErrMemberNotFound is returned when a member doesn't exist
var ErrMemberNotFound = errors.New("member not found")

// Member is someone who has signed in to the documentation site
type Member struct {
	Email      string    `json:"email"`
	FullName   string    `json:"full_name,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	LoginCount int64     `json:"login_count"`
	Enabled    bool      `json:"enabled"`
}

// Storage records member logins. Members are keyed by normalized email.
type Storage interface {
	// UpsertMember records a successful login, creating the member on
	// first sight
	UpsertMember(ctx context.Context, email, fullName string) error
	GetMember(ctx context.Context, email string) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	SetMemberEnabled(ctx context.Context, email string, enabled bool) error
	DeleteMember(ctx context.Context, email string) error
	// PruneMembers deletes members not seen since before and returns how
	// many were removed
	PruneMembers(ctx context.Context, before time.Time) (int, error)
	Close() error
}
