package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/chime-auth/internal/logger"
	"github.com/sbilibin2017/chime-auth/internal/models"
)

// CredentialRepository stores usernames, password hashes and last-seen timestamps.
type CredentialRepository struct {
	db       *sqlx.DB
	txGetter TxGetter
	timeout  time.Duration
}

func NewCredentialRepository(db *sqlx.DB, txGetter TxGetter, timeout time.Duration) *CredentialRepository {
	return &CredentialRepository{db: db, txGetter: txGetter, timeout: timeout}
}

// FindByUsername returns the credential for username, or nil when there is none.
func (r *CredentialRepository) FindByUsername(ctx context.Context, username string) (*models.Credential, error) {
	const query = `
		SELECT id, username, password_hash, last_seen
		FROM credentials
		WHERE username = $1
	`
	return r.findOne(ctx, query, username)
}

// FindByID returns the credential with the given id, or nil when there is none.
func (r *CredentialRepository) FindByID(ctx context.Context, id int64) (*models.Credential, error) {
	const query = `
		SELECT id, username, password_hash, last_seen
		FROM credentials
		WHERE id = $1
	`
	return r.findOne(ctx, query, id)
}

func (r *CredentialRepository) findOne(ctx context.Context, query string, arg any) (*models.Credential, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var cred models.Credential
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &cred, query, arg)

	// Log with query in single line
	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{arg},
		"result", cred.ID,
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Insert creates a credential and returns its id. A username collision
// reported by the database yields ErrUsernameTaken.
func (r *CredentialRepository) Insert(ctx context.Context, username, passwordHash string, lastSeen int64) (int64, error) {
	const query = `
		INSERT INTO credentials (username, password_hash, last_seen)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var id int64
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &id, query, username, passwordHash, lastSeen)

	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{username, redacted, lastSeen},
		"result", id,
		"error", err,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	return id, nil
}

// UpdateLastSeen stores the sign-in time and returns the stored value. The
// stored value always moves forward, even when the clock does not.
func (r *CredentialRepository) UpdateLastSeen(ctx context.Context, id int64, lastSeen int64) (int64, error) {
	const query = `
		UPDATE credentials
		SET last_seen = GREATEST($2, last_seen + 1)
		WHERE id = $1
		RETURNING last_seen
	`
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var stored int64
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &stored, query, id, lastSeen)

	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{id, lastSeen},
		"result", stored,
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stored, err
}
