// Package mysql stores notification records in MySQL using the
// notifications / notification_translations schema.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// Tables names the two tables and the translation foreign key column.
type Tables struct {
	Notifications string
	Translations  string
	ForeignKey    string
}

// DefaultTables matches the stock migration.
var DefaultTables = Tables{
	Notifications: "notifications",
	Translations:  "notification_translations",
	ForeignKey:    "notification_id",
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func (t Tables) validate() error {
	for _, name := range []string{t.Notifications, t.Translations, t.ForeignKey} {
		if !identifier.MatchString(name) {
			return fmt.Errorf("invalid table or column name %q", name)
		}
	}
	return nil
}

// RecordStore implements notify.RecordStore.
type RecordStore struct {
	db     *sql.DB
	tables Tables
}

// NewRecordStore fails on table names that are not plain identifiers, since
// they are interpolated into SQL.
func NewRecordStore(db *sql.DB, tables Tables) (*RecordStore, error) {
	if err := tables.validate(); err != nil {
		return nil, err
	}
	return &RecordStore{db: db, tables: tables}, nil
}

// Open connects with parseTime forced on and pings with a linear backoff.
// Cancelling ctx abandons the retries.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	const maxRetries = 5
	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if i == maxRetries {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("gave up connecting to database: %w", errors.Join(err, ctx.Err()))
		case <-time.After(time.Duration(i) * time.Second):
		}
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// Migrate creates both tables if they do not exist.
func (s *RecordStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *RecordStore) schema() []string {
	t := s.tables
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
			"`id` BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,"+
			"`model_type` VARCHAR(255) NOT NULL,"+
			"`model_id` VARCHAR(255) NOT NULL,"+
			"`related_type` VARCHAR(255) NULL,"+
			"`related_id` VARCHAR(255) NULL,"+
			"`seen_at` TIMESTAMP NULL,"+
			"`extra_fields` JSON NULL,"+
			"`icon` VARCHAR(255) NULL,"+
			"`created_at` TIMESTAMP NULL,"+
			"`updated_at` TIMESTAMP NULL,"+
			"INDEX `%[1]s_model_index` (`model_type`, `model_id`),"+
			"INDEX `%[1]s_related_index` (`related_type`, `related_id`)"+
			") DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci", t.Notifications),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%[1]s` ("+
			"`id` BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,"+
			"`%[2]s` BIGINT UNSIGNED NOT NULL,"+
			"`locale` VARCHAR(255) NOT NULL,"+
			"`title` VARCHAR(255) NOT NULL,"+
			"`body` TEXT NOT NULL,"+
			"INDEX `%[1]s_locale_index` (`locale`),"+
			"UNIQUE KEY `%[1]s_%[2]s_locale_unique` (`%[2]s`, `locale`),"+
			"CONSTRAINT `%[1]s_%[2]s_foreign` FOREIGN KEY (`%[2]s`) REFERENCES `%[3]s` (`id`) ON DELETE CASCADE"+
			") DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci", t.Translations, t.ForeignKey, t.Notifications),
	}
}

// Save inserts one notification row per recipient and one translation row
// per titled locale, all in a single transaction.
func (s *RecordStore) Save(ctx context.Context, recipients []notify.Recipient, req *notify.NotificationRequest) (err error) {
	var extra sql.NullString
	if len(req.Metadata.ExtraFields) > 0 {
		raw, jsonErr := json.Marshal(req.Metadata.ExtraFields)
		if jsonErr != nil {
			return fmt.Errorf("failed to encode extra fields: %w", jsonErr)
		}
		extra = sql.NullString{String: string(raw), Valid: true}
	}
	var relatedType, relatedID sql.NullString
	if rel := req.Metadata.Related; rel != nil {
		relatedType = sql.NullString{String: rel.Type, Valid: true}
		relatedID = sql.NullString{String: rel.ID, Valid: true}
	}
	var icon sql.NullString
	if req.Metadata.Icon != nil {
		icon = sql.NullString{String: *req.Metadata.Icon, Valid: true}
	}

	locales := make([]notify.Locale, 0, len(req.Title))
	for l := range req.Title {
		locales = append(locales, l)
	}
	slices.Sort(locales)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insertNotification := fmt.Sprintf("INSERT INTO `%s` "+
		"(model_type, model_id, related_type, related_id, seen_at, extra_fields, icon, created_at, updated_at) "+
		"VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?)", s.tables.Notifications)

	now := time.Now().UTC()
	for _, r := range recipients {
		owner := r.Ref()
		res, execErr := tx.ExecContext(ctx, insertNotification,
			owner.Type, owner.ID, relatedType, relatedID, extra, icon, now, now)
		if execErr != nil {
			return fmt.Errorf("failed to insert notification for %s: %w", owner, execErr)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("failed to read notification id: %w", idErr)
		}
		if len(locales) == 0 {
			continue
		}
		if execErr := s.insertTranslations(ctx, tx, id, locales, req); execErr != nil {
			return execErr
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notifications: %w", err)
	}
	return nil
}

func (s *RecordStore) insertTranslations(ctx context.Context, tx *sql.Tx, id int64, locales []notify.Locale, req *notify.NotificationRequest) error {
	placeholders := make([]string, 0, len(locales))
	args := make([]any, 0, len(locales)*4)
	for _, l := range locales {
		placeholders = append(placeholders, "(?, ?, ?, ?)")
		args = append(args, id, string(l), req.Title[l], req.BodyFor(l))
	}

	query := fmt.Sprintf("INSERT INTO `%s` (`%s`, locale, title, body) VALUES %s",
		s.tables.Translations, s.tables.ForeignKey, strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert translations for notification %d: %w", id, err)
	}
	return nil
}
