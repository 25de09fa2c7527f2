// Package database provides the sqlite-backed display-name cache for
// groups and contacts. Names are encrypted at rest when an encryption
// secret is configured.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sigclaw/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	group_id  TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	cached_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	phone_number TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	cached_at    TIMESTAMP NOT NULL
);
`

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("invalid database path")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) SaveGroup(ctx context.Context, group *models.Group) error {
	name, err := d.encryptor.encryptIfEnabled(group.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt group name: %w", err)
	}

	cachedAt := group.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now().UTC()
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO groups (group_id, name, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET name = excluded.name, cached_at = excluded.cached_at`,
		group.GroupID, name, cachedAt)
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (d *Database) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT group_id, name, cached_at FROM groups WHERE group_id = ?`, groupID)

	var group models.Group
	var name string
	if err := row.Scan(&group.GroupID, &name, &group.CachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query group: %w", err)
	}

	decrypted, err := d.encryptor.decryptIfEnabled(name)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt group name: %w", err)
	}
	group.Name = decrypted
	return &group, nil
}

func (d *Database) SaveContact(ctx context.Context, contact *models.Contact) error {
	name, err := d.encryptor.encryptIfEnabled(contact.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact name: %w", err)
	}

	cachedAt := contact.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now().UTC()
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO contacts (phone_number, name, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET name = excluded.name, cached_at = excluded.cached_at`,
		contact.PhoneNumber, name, cachedAt)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

func (d *Database) GetContact(ctx context.Context, phoneNumber string) (*models.Contact, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT phone_number, name, cached_at FROM contacts WHERE phone_number = ?`, phoneNumber)

	var contact models.Contact
	var name string
	if err := row.Scan(&contact.PhoneNumber, &name, &contact.CachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}

	decrypted, err := d.encryptor.decryptIfEnabled(name)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt contact name: %w", err)
	}
	contact.Name = decrypted
	return &contact, nil
}

// CleanupOldRecords removes cache entries older than the retention window
func (d *Database) CleanupOldRecords(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	if _, err := d.db.ExecContext(ctx, `DELETE FROM groups WHERE cached_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to cleanup groups: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM contacts WHERE cached_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to cleanup contacts: %w", err)
	}
	return nil
}
