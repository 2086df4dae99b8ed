package firestore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

const (
	notificationsCollection = "notifications"
	translationsCollection  = "translations"
)

// RecordStore implements notify.RecordStore. Each recipient gets a
// notifications/{id} document; its text lives in
// notifications/{id}/translations/{locale}, so a locale can only appear
// once per notification.
type RecordStore struct {
	client *firestore.Client
}

func NewRecordStore(client *firestore.Client) *RecordStore {
	return &RecordStore{client: client}
}

type notificationRecord struct {
	ModelType   string         `firestore:"model_type"`
	ModelID     string         `firestore:"model_id"`
	RelatedType string         `firestore:"related_type,omitempty"`
	RelatedID   string         `firestore:"related_id,omitempty"`
	Icon        *string        `firestore:"icon"`
	ExtraFields map[string]any `firestore:"extra_fields,omitempty"`
	SeenAt      *time.Time     `firestore:"seen_at"`
	CreatedAt   time.Time      `firestore:"created_at"`
	UpdatedAt   time.Time      `firestore:"updated_at"`
}

type translationRecord struct {
	Locale string `firestore:"locale"`
	Title  string `firestore:"title"`
	Body   string `firestore:"body"`
}

// saveConcurrency bounds the number of recipient transactions in flight.
const saveConcurrency = 10

// Save writes one transaction per recipient, so a record never exists
// without its translations. Recipients are independent: when one fails,
// the others may already be committed and the first error is returned.
func (s *RecordStore) Save(ctx context.Context, recipients []notify.Recipient, req *notify.NotificationRequest) error {
	now := time.Now().UTC()

	var related notificationRecord
	if rel := req.Metadata.Related; rel != nil {
		related.RelatedType = rel.Type
		related.RelatedID = rel.ID
	}

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(saveConcurrency)
	for _, r := range recipients {
		owner := r.Ref()
		record := notificationRecord{
			ModelType:   owner.Type,
			ModelID:     owner.ID,
			RelatedType: related.RelatedType,
			RelatedID:   related.RelatedID,
			Icon:        req.Metadata.Icon,
			ExtraFields: req.Metadata.ExtraFields,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		g.Go(func() error {
			if err := s.saveOne(gctx, record, req); err != nil {
				failed.Add(1)
				return fmt.Errorf("failed to save notification for %s: %w", owner, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("saved notifications for only part of %d recipients (%d failed): %w", len(recipients), failed.Load(), err)
	}
	return nil
}

func (s *RecordStore) saveOne(ctx context.Context, record notificationRecord, req *notify.NotificationRequest) error {
	ref := s.client.Collection(notificationsCollection).Doc(uuid.NewString())
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(ref, record); err != nil {
			return err
		}
		for locale, title := range req.Title {
			tr := translationRecord{Locale: string(locale), Title: title, Body: req.BodyFor(locale)}
			if err := tx.Create(ref.Collection(translationsCollection).Doc(string(locale)), tr); err != nil {
				return err
			}
		}
		return nil
	})
}
