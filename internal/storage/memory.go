package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tenup/docgate/internal/emailutil"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps members in process memory
type MemoryStorage struct {
	mu      sync.RWMutex
	members map[string]*Member
	now     func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		members: make(map[string]*Member),
		now:     time.Now,
	}
}

// UpsertMember creates or updates a member's last seen time
func (s *MemoryStorage) UpsertMember(_ context.Context, email, fullName string) error {
	email = emailutil.Normalize(email)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if m, exists := s.members[email]; exists {
		m.LastSeen = now
		m.LoginCount++
		if fullName != "" {
			m.FullName = fullName
		}
		return nil
	}
	s.members[email] = &Member{
		Email:      email,
		FullName:   fullName,
		FirstSeen:  now,
		LastSeen:   now,
		LoginCount: 1,
		Enabled:    true,
	}
	return nil
}

// GetMember returns a copy of the member
func (s *MemoryStorage) GetMember(_ context.Context, email string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.members[emailutil.Normalize(email)]
	if !exists {
		return nil, ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

// ListMembers returns all members ordered by email
func (s *MemoryStorage) ListMembers(_ context.Context) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, *m)
	}
	slices.SortFunc(members, func(a, b Member) int {
		return strings.Compare(a.Email, b.Email)
	})
	return members, nil
}

// SetMemberEnabled updates a member's enabled status
func (s *MemoryStorage) SetMemberEnabled(_ context.Context, email string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.members[emailutil.Normalize(email)]
	if !exists {
		return ErrMemberNotFound
	}
	m.Enabled = enabled
	return nil
}

// DeleteMember removes a member. Deleting an unknown member is not an error.
func (s *MemoryStorage) DeleteMember(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members, emailutil.Normalize(email))
	return nil
}

// PruneMembers implements Storage
func (s *MemoryStorage) PruneMembers(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for email, m := range s.members {
		if m.LastSeen.Before(before) {
			delete(s.members, email)
			count++
		}
	}
	return count, nil
}

// Close implements Storage
func (s *MemoryStorage) Close() error {
	return nil
}
