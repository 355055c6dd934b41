package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"chatrelay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Flags(ctx context.Context, userID string) (isAdmin, isSubscribed bool)
}

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPoolConnection(pool *pgxpool.Pool) UserRepository {
	return &PostgresUserRepo{
		pool: pool,
	}
}

func (r *PostgresUserRepo) CreateUser(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (id, username, email, password_hash) VALUES ($1,$2,$3,$4) RETURNING username, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Password_Hash,
	).Scan(&user.Username, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

func (r *PostgresUserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, is_admin, is_subscribed, created_at, updated_at
		FROM users
		WHERE username = $1`

	return r.scanOne(ctx, query, username)
}

func (r *PostgresUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, is_admin, is_subscribed, created_at, updated_at
		FROM users
		WHERE email = $1`

	return r.scanOne(ctx, query, email)
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, is_admin, is_subscribed, created_at, updated_at
		FROM users
		WHERE id = $1`

	return r.scanOne(ctx, query, id)
}

// Flags looks up moderation flags fresh on every call. Nothing caches
// the result, so revoking a flag takes effect on the next action.
// Guests (no row) get neither flag.
func (r *PostgresUserRepo) Flags(ctx context.Context, userID string) (bool, bool) {
	if userID == "" || strings.HasPrefix(userID, "guest_") {
		return false, false
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return false, false
	}

	var isAdmin, isSubscribed bool
	err = r.pool.QueryRow(ctx,
		`SELECT is_admin, is_subscribed FROM users WHERE id = $1`, id,
	).Scan(&isAdmin, &isSubscribed)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("[REPO ERROR] Flag lookup failed for %s: %v", userID, err)
		}
		return false, false
	}
	return isAdmin, isSubscribed
}

func (r *PostgresUserRepo) scanOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Password_Hash,
		&user.IsAdmin,
		&user.IsSubscribed,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}
