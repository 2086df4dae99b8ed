package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const (
	usersCollection   = "users"
	devicesCollection = "devices"
	// Firestore caps the operand of an "in" filter.
	maxInFilter = 30
)

// TokenStore implements registry.TokenStore using Google Cloud Firestore.
type TokenStore struct {
	client *firestore.Client
}

func NewTokenStore(client *firestore.Client) *TokenStore {
	return &TokenStore{client: client}
}

// deviceRecord is the internal DB representation.
type deviceRecord struct {
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *TokenStore) Register(ctx context.Context, user urn.URN, token string) error {
	// Use hash of token as Doc ID to prevent duplicates and hot-spotting
	record := deviceRecord{
		Token:     token,
		UpdatedAt: time.Now(),
	}
	_, err := s.deviceRef(user, hashToken(token)).Set(ctx, record)
	return err
}

func (s *TokenStore) Unregister(ctx context.Context, user urn.URN, token string) error {
	_, err := s.deviceRef(user, hashToken(token)).Delete(ctx)
	return err
}

// --- FAN-OUT (The Lookup) ---

func (s *TokenStore) Fetch(ctx context.Context, user urn.URN) ([]string, error) {
	iter := s.devicesCollection(user).Documents(ctx)
	defer iter.Stop()

	tokens := make([]string, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Skip corrupt rows.
			continue
		}
		if record.Token != "" {
			tokens = append(tokens, record.Token)
		}
	}
	return tokens, nil
}

// PruneTokens finds the tokens across every user with a collection group
// query and deletes them.
func (s *TokenStore) PruneTokens(ctx context.Context, tokens []string) ([]urn.URN, error) {
	seen := make(map[string]struct{})
	var owners []urn.URN

	for start := 0; start < len(tokens); start += maxInFilter {
		batch := tokens[start:min(start+maxInFilter, len(tokens))]

		iter := s.client.CollectionGroup(devicesCollection).Where("token", "in", batch).Documents(ctx)
		docs, err := iter.GetAll()
		if err != nil {
			return owners, fmt.Errorf("failed to query devices for pruning: %w", err)
		}

		for _, doc := range docs {
			if _, err := doc.Ref.Delete(ctx); err != nil {
				return owners, fmt.Errorf("failed to delete device %s: %w", doc.Ref.ID, err)
			}
			userDoc := doc.Ref.Parent.Parent
			if userDoc == nil {
				continue
			}
			if _, dup := seen[userDoc.ID]; dup {
				continue
			}
			seen[userDoc.ID] = struct{}{}
			if owner, err := urn.Parse(userDoc.ID); err == nil {
				owners = append(owners, owner)
			}
		}
	}
	return owners, nil
}

// --- Helpers ---

// deviceRef: users/{userURN}/devices/{deviceHash}
func (s *TokenStore) deviceRef(user urn.URN, docID string) *firestore.DocumentRef {
	return s.devicesCollection(user).Doc(docID)
}

func (s *TokenStore) devicesCollection(user urn.URN) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(user.String()).Collection(devicesCollection)
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
