package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/tenup/docgate/internal/emailutil"
	"github.com/tenup/docgate/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStorage keeps members in a Google Cloud Firestore collection,
// one document per member keyed by normalized email.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
}

var _ Storage = (*FirestoreStorage)(nil)

// MemberDoc represents a member document in Firestore
type MemberDoc struct {
	Email      string    `firestore:"email"`
	FullName   string    `firestore:"full_name,omitempty"`
	FirstSeen  time.Time `firestore:"first_seen"`
	LastSeen   time.Time `firestore:"last_seen"`
	LoginCount int64     `firestore:"login_count"`
	Enabled    bool      `firestore:"enabled"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
	}, nil
}

func (s *FirestoreStorage) doc(email string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(emailutil.Normalize(email))
}

// UpsertMember creates or updates a member's last seen time
func (s *FirestoreStorage) UpsertMember(ctx context.Context, email, fullName string) error {
	ref := s.doc(email)
	now := time.Now()

	_, err := ref.Get(ctx)
	if err == nil {
		updates := []firestore.Update{
			{Path: "last_seen", Value: now},
			{Path: "login_count", Value: firestore.Increment(1)},
		}
		if fullName != "" {
			updates = append(updates, firestore.Update{Path: "full_name", Value: fullName})
		}
		_, err = ref.Update(ctx, updates)
		return err
	}

	if status.Code(err) == codes.NotFound {
		_, err = ref.Set(ctx, MemberDoc{
			Email:      emailutil.Normalize(email),
			FullName:   fullName,
			FirstSeen:  now,
			LastSeen:   now,
			LoginCount: 1,
			Enabled:    true,
		})
		return err
	}

	return err
}

// GetMember returns one member
func (s *FirestoreStorage) GetMember(ctx context.Context, email string) (*Member, error) {
	snap, err := s.doc(email).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	var doc MemberDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member: %w", err)
	}
	m := Member(doc)
	return &m, nil
}

// ListMembers returns all members ordered by email
func (s *FirestoreStorage) ListMembers(ctx context.Context) ([]Member, error) {
	iter := s.client.Collection(s.collection).OrderBy("email", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var members []Member
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate members: %w", err)
		}

		var doc MemberDoc
		if err := snap.DataTo(&doc); err != nil {
			log.LogError("Failed to unmarshal member %s: %v", snap.Ref.ID, err)
			continue
		}
		members = append(members, Member(doc))
	}
	return members, nil
}

// SetMemberEnabled updates a member's enabled status
func (s *FirestoreStorage) SetMemberEnabled(ctx context.Context, email string, enabled bool) error {
	_, err := s.doc(email).Update(ctx, []firestore.Update{
		{Path: "enabled", Value: enabled},
	})
	if status.Code(err) == codes.NotFound {
		return ErrMemberNotFound
	}
	return err
}

// DeleteMember removes a member from storage
func (s *FirestoreStorage) DeleteMember(ctx context.Context, email string) error {
	_, err := s.doc(email).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

// PruneMembers deletes members whose last login is older than before
func (s *FirestoreStorage) PruneMembers(ctx context.Context, before time.Time) (int, error) {
	iter := s.client.Collection(s.collection).Where("last_seen", "<", before).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate stale members: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			log.LogError("Failed to delete stale member %s: %v", snap.Ref.ID, err)
			continue
		}
		count++
	}
	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
