package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sbilibin2017/chime-auth/internal/logger"
	"github.com/sbilibin2017/chime-auth/internal/models"
	"github.com/sbilibin2017/chime-auth/internal/repositories"
)

//go:generate mockgen -source=auth.go -destination=mock_auth.go -package=services

// Error variables
var (
	ErrValidation         = errors.New("missing required field")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrPersistence        = errors.New("persistence failure")
)

// CredentialStore persists usernames and password hashes.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Credential, error)
	FindByID(ctx context.Context, id int64) (*models.Credential, error)
	Insert(ctx context.Context, username, passwordHash string, lastSeen int64) (int64, error)
	UpdateLastSeen(ctx context.Context, id int64, lastSeen int64) (int64, error)
}

// ProfileStore persists display profiles.
type ProfileStore interface {
	Insert(ctx context.Context, profile models.Profile) error
	GetByID(ctx context.Context, id int64) (*models.Profile, error)
}

// ProfileCache caches profiles in front of the ProfileStore.
type ProfileCache interface {
	Get(ctx context.Context, id int64) (*models.Profile, error)
	Set(ctx context.Context, profile models.Profile) error
}

// PasswordHasher hashes passwords and verifies them against stored hashes.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var validate = validator.New()

// AuthService handles registration, sign-in and password re-checks.
type AuthService struct {
	credentials CredentialStore
	profiles    ProfileStore
	cache       ProfileCache
	hasher      PasswordHasher
	tx          Transactor
	kafkaWriter KafkaWriter
	now         func() time.Time

	publishTimeout time.Duration
}

// NewAuthService creates a new AuthService instance. cache and kafkaWriter may be nil.
func NewAuthService(
	credentials CredentialStore,
	profiles ProfileStore,
	cache ProfileCache,
	hasher PasswordHasher,
	tx Transactor,
	kafkaWriter KafkaWriter,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		profiles:    profiles,
		cache:       cache,
		hasher:      hasher,
		tx:          tx,
		kafkaWriter: kafkaWriter,
		now:         time.Now,

		publishTimeout: DefaultPublishTimeout,
	}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Register creates a credential and its profile in one transaction.
func (s *AuthService) Register(ctx context.Context, username, first, last, password string) (*models.User, error) {
	req := models.RegisterRequest{Username: username, First: first, Last: last, Password: password}
	if err := validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Fast path only; the unique constraint decides.
	existing, err := s.credentials.FindByUsername(ctx, username)
	if err != nil {
		logger.Log.Errorw("failed to check username", "username", username, "error", err)
		return nil, persistenceError("find credential", err)
	}
	if existing != nil {
		logger.Log.Infow("username already exists", "username", username)
		return nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		logger.Log.Errorw("failed to hash password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var profile models.Profile
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.credentials.Insert(ctx, username, hash, s.now().UnixMilli())
		if err != nil {
			return err
		}
		profile = models.Profile{
			ID:        id,
			FirstName: first,
			LastName:  last,
			AvatarURL: models.DefaultAvatarURL,
		}
		return s.profiles.Insert(ctx, profile)
	})
	if errors.Is(err, repositories.ErrUsernameTaken) {
		logger.Log.Infow("username taken by concurrent registration", "username", username)
		return nil, ErrUsernameTaken
	}
	if err != nil {
		logger.Log.Errorw("registration transaction failed", "username", username, "error", err)
		return nil, persistenceError("register", err)
	}

	s.cacheProfile(ctx, profile)
	s.publishEvent(ctx, models.EventRegistered, profile.ID, username)

	return models.NewUser(&profile), nil
}

// SignIn verifies the password, records the sign-in time and returns the user view.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (*models.User, error) {
	req := models.SignInRequest{Username: username, Password: password}
	if err := validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	cred, err := s.credentials.FindByUsername(ctx, username)
	if err != nil {
		logger.Log.Errorw("failed to get credential", "username", username, "error", err)
		return nil, persistenceError("find credential", err)
	}
	if cred == nil {
		logger.Log.Infow("sign-in for unknown username", "username", username)
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, cred.PasswordHash)
	if err != nil {
		logger.Log.Errorw("failed to verify password", "username", username, "error", err)
		return nil, persistenceError("verify password", err)
	}
	if !ok {
		logger.Log.Infow("invalid credentials", "username", username)
		return nil, ErrInvalidCredentials
	}

	if _, err := s.credentials.UpdateLastSeen(ctx, cred.ID, s.now().UnixMilli()); err != nil {
		logger.Log.Errorw("failed to update last seen", "id", cred.ID, "error", err)
		return nil, persistenceError("update last seen", err)
	}

	profile, err := s.loadProfile(ctx, cred.ID)
	if err != nil {
		logger.Log.Errorw("failed to get profile", "id", cred.ID, "error", err)
		return nil, persistenceError("get profile", err)
	}

	s.publishEvent(ctx, models.EventSignedIn, cred.ID, username)

	return models.NewUser(profile), nil
}

// ValidateByUsername reports whether password belongs to username. Nothing is modified.
func (s *AuthService) ValidateByUsername(ctx context.Context, username, password string) (bool, error) {
	cred, err := s.credentials.FindByUsername(ctx, username)
	if err != nil {
		logger.Log.Errorw("failed to get credential", "username", username, "error", err)
		return false, persistenceError("find credential", err)
	}
	return s.verify(ctx, cred, password)
}

// ValidateByID reports whether password belongs to the account id. Nothing is modified.
func (s *AuthService) ValidateByID(ctx context.Context, id int64, password string) (bool, error) {
	cred, err := s.credentials.FindByID(ctx, id)
	if err != nil {
		logger.Log.Errorw("failed to get credential", "id", id, "error", err)
		return false, persistenceError("find credential", err)
	}
	return s.verify(ctx, cred, password)
}

func (s *AuthService) verify(ctx context.Context, cred *models.Credential, password string) (bool, error) {
	if cred == nil {
		return false, nil
	}
	ok, err := s.hasher.Verify(ctx, password, cred.PasswordHash)
	if err != nil {
		logger.Log.Errorw("failed to verify password", "id", cred.ID, "error", err)
		return false, persistenceError("verify password", err)
	}
	return ok, nil
}

// loadProfile reads through the cache. Cache failures fall back to the store.
func (s *AuthService) loadProfile(ctx context.Context, id int64) (*models.Profile, error) {
	if s.cache != nil {
		profile, err := s.cache.Get(ctx, id)
		if err != nil {
			logger.Log.Warnw("profile cache read failed", "id", id, "error", err)
		}
		if profile != nil {
			return profile, nil
		}
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %d: %w", id, repositories.ErrNotFound)
	}

	s.cacheProfile(ctx, *profile)
	return profile, nil
}

func (s *AuthService) cacheProfile(ctx context.Context, profile models.Profile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, profile); err != nil {
		logger.Log.Warnw("failed to cache profile", "id", profile.ID, "error", err)
	}
}
