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

// ProfileRepository stores display profiles keyed by credential id.
type ProfileRepository struct {
	db       *sqlx.DB
	txGetter TxGetter
	timeout  time.Duration
}

func NewProfileRepository(db *sqlx.DB, txGetter TxGetter, timeout time.Duration) *ProfileRepository {
	return &ProfileRepository{db: db, txGetter: txGetter, timeout: timeout}
}

// Insert creates the profile row for an existing credential.
func (r *ProfileRepository) Insert(ctx context.Context, profile models.Profile) error {
	const query = `
		INSERT INTO profiles (id, first_name, last_name, avatar_url)
		VALUES ($1, $2, $3, $4)
	`
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	args := []any{profile.ID, profile.FirstName, profile.LastName, profile.AvatarURL}
	res, err := executor(ctx, r.db, r.txGetter).ExecContext(ctx, query, args...)
	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}

	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", rowsAffected,
		"error", err,
	)

	return err
}

// GetByID returns the profile with the given id, or nil when there is none.
func (r *ProfileRepository) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	const query = `
		SELECT id, first_name, last_name, avatar_url
		FROM profiles
		WHERE id = $1
	`
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var profile models.Profile
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &profile, query, id)

	logger.Log.Infow(
		"query", strings.Join(strings.Fields(query), " "),
		"args", []any{id},
		"result", profile,
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
