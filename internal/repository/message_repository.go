package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"chatrelay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo interface {
	Insert(ctx context.Context, m *models.Message) error
	ListOrdered(ctx context.Context, room string) ([]*models.Message, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteOlderThan(ctx context.Context, room string, cutoff time.Time) error
}

type PostgresMessagesRepo struct {
	pool *pgxpool.Pool
}

var _ MessageRepo = (*PostgresMessagesRepo)(nil)

func NewMessagesRepo(pool *pgxpool.Pool) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		pool: pool,
	}
}

// Insert persists the message and fills in the database-assigned id and
// timestamp. Senders never pick either.
func (r *PostgresMessagesRepo) Insert(ctx context.Context, m *models.Message) error {
	query := `
        INSERT INTO messages (room, sender_name, msg_type, content, media_url, file_name)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `

	err := r.pool.QueryRow(ctx, query,
		m.Room,
		m.Sender,
		m.Kind,
		nullable(m.Content),
		nullable(m.MediaURL),
		nullable(m.FileName),
	).Scan(&m.ID, &m.CreatedAt)

	if err != nil {
		log.Printf("[REPO ERROR] Failed to save message from %s in %s: %v", m.Sender, m.Room, err)
		return err
	}

	return nil
}

// ListOrdered returns the room backlog ordered by the persisted id,
// falling back to the timestamp so a row with damaged ordering metadata
// never sinks the whole read. Optional columns may be NULL.
func (r *PostgresMessagesRepo) ListOrdered(ctx context.Context, room string) ([]*models.Message, error) {
	query := `
        SELECT id, room, sender_name, msg_type, content, media_url, file_name, created_at
        FROM messages
        WHERE room = $1
        ORDER BY id ASC, created_at ASC
    `

	rows, err := r.pool.Query(ctx, query, room)
	if err != nil {
		log.Printf("[REPO ERROR] Fetch failed for room %s: %v", room, err)
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var content, mediaURL, fileName *string
		err := rows.Scan(
			&m.ID,
			&m.Room,
			&m.Sender,
			&m.Kind,
			&content,
			&mediaURL,
			&fileName,
			&m.CreatedAt,
		)
		if err != nil {
			log.Printf("[REPO ERROR] Scan failed in room %s, skipping row: %v", room, err)
			continue
		}
		if content != nil {
			m.Content = *content
		}
		if mediaURL != nil {
			m.MediaURL = *mediaURL
		}
		if fileName != nil {
			m.FileName = *fileName
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (r *PostgresMessagesRepo) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `
        SELECT id, room, sender_name, msg_type, content, media_url, file_name, created_at
        FROM messages
        WHERE id = $1
    `

	m := &models.Message{}
	var content, mediaURL, fileName *string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Room,
		&m.Sender,
		&m.Kind,
		&content,
		&mediaURL,
		&fileName,
		&m.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		log.Printf("[REPO ERROR] Lookup failed for message %d: %v", id, err)
		return nil, err
	}
	if content != nil {
		m.Content = *content
	}
	if mediaURL != nil {
		m.MediaURL = *mediaURL
	}
	if fileName != nil {
		m.FileName = *fileName
	}
	return m, nil
}

func (r *PostgresMessagesRepo) DeleteByID(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to delete message %d: %v", id, err)
		return fmt.Errorf("database delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteOlderThan trims expired backlog for one room.
func (r *PostgresMessagesRepo) DeleteOlderThan(ctx context.Context, room string, cutoff time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM messages WHERE room = $1 AND created_at < $2`, room, cutoff)
	if err != nil {
		log.Printf("[REPO ERROR] Retention sweep failed for room %s: %v", room, err)
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Printf("[REPO] Evicted %d expired message(s) from room %s", n, room)
	}
	return nil
}

// DeleteAllOlderThan trims expired backlog across every room. Used by
// the nightly sweep; the join path still trims its own room.
func (r *PostgresMessagesRepo) DeleteAllOlderThan(ctx context.Context, cutoff time.Time) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		log.Printf("[REPO ERROR] Global retention sweep failed: %v", err)
		return err
	}
	log.Printf("[REPO] Nightly sweep removed %d expired message(s)", tag.RowsAffected())
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
