package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sbilibin2017/chime-auth/internal/models"
	"github.com/sbilibin2017/chime-auth/internal/repositories"
	"github.com/sbilibin2017/chime-auth/internal/services"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authMocks struct {
	creds    *services.MockCredentialStore
	profiles *services.MockProfileStore
	cache    *services.MockProfileCache
	hasher   *services.MockPasswordHasher
	tx       *services.MockTransactor
	kafka    *services.MockKafkaWriter
}

func newAuthMocks(t *testing.T) (*authMocks, *services.AuthService) {
	ctrl := gomock.NewController(t)
	m := &authMocks{
		creds:    services.NewMockCredentialStore(ctrl),
		profiles: services.NewMockProfileStore(ctrl),
		cache:    services.NewMockProfileCache(ctrl),
		hasher:   services.NewMockPasswordHasher(ctrl),
		tx:       services.NewMockTransactor(ctrl),
		kafka:    services.NewMockKafkaWriter(ctrl),
	}
	svc := services.NewAuthService(m.creds, m.profiles, m.cache, m.hasher, m.tx, m.kafka)
	return m, svc
}

// runTx executes the transactional callback the way the real manager does.
func runTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestAuthService_Register_Validation(t *testing.T) {
	tests := []struct {
		name                            string
		username, first, last, password string
	}{
		{name: "missing username", first: "John", last: "Doe", password: "pw"},
		{name: "missing first", username: "john", last: "Doe", password: "pw"},
		{name: "missing last", username: "john", first: "John", password: "pw"},
		{name: "missing password", username: "john", first: "John", last: "Doe"},
		{name: "all missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc := newAuthMocks(t)

			user, err := svc.Register(context.Background(), tt.username, tt.first, tt.last, tt.password)
			assert.ErrorIs(t, err, services.ErrValidation)
			assert.Nil(t, user)
		})
	}
}

func TestAuthService_Register(t *testing.T) {
	dbErr := errors.New("db error")

	tests := []struct {
		name     string
		setup    func(m *authMocks)
		wantErr  error
		wantUser *models.User
	}{
		{
			name: "successful registration",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
				m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
				m.creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).Return(int64(42), nil)
				m.profiles.EXPECT().Insert(gomock.Any(), models.Profile{
					ID: 42, FirstName: "John", LastName: "Doe", AvatarURL: models.DefaultAvatarURL,
				}).Return(nil)
				m.cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(nil)
				m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(nil)
			},
			wantUser: &models.User{First: "John", Last: "Doe", ID: 42, Picture: models.DefaultAvatarURL},
		},
		{
			name: "username already exists",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").
					Return(&models.Credential{ID: 1, Username: "john"}, nil)
			},
			wantErr: services.ErrUsernameTaken,
		},
		{
			name: "lookup error",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, dbErr)
			},
			wantErr: services.ErrPersistence,
		},
		{
			name: "concurrent registration wins the unique constraint",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
				m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
				m.creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).
					Return(int64(0), repositories.ErrUsernameTaken)
			},
			wantErr: services.ErrUsernameTaken,
		},
		{
			name: "credential insert fails",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
				m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
				m.creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).Return(int64(0), dbErr)
			},
			wantErr: services.ErrPersistence,
		},
		{
			name: "profile insert fails",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
				m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
				m.creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).Return(int64(42), nil)
				m.profiles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(dbErr)
			},
			wantErr: services.ErrPersistence,
		},
		{
			name: "begin transaction fails",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
				m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Return(dbErr)
			},
			wantErr: services.ErrPersistence,
		},
		{
			name: "cache and kafka failures do not fail registration",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
				m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
				m.creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).Return(int64(7), nil)
				m.profiles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
				m.cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
				m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("kafka down"))
			},
			wantUser: &models.User{First: "John", Last: "Doe", ID: 7, Picture: models.DefaultAvatarURL},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, svc := newAuthMocks(t)
			tt.setup(m)

			user, err := svc.Register(context.Background(), "john", "John", "Doe", "secret")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestAuthService_Register_HashError(t *testing.T) {
	m, svc := newAuthMocks(t)
	m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
	m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("", errors.New("entropy exhausted"))

	user, err := svc.Register(context.Background(), "john", "John", "Doe", "secret")
	assert.Error(t, err)
	assert.Nil(t, user)
	assert.False(t, errors.Is(err, services.ErrUsernameTaken))
}

func TestAuthService_Register_WithoutCacheAndKafka(t *testing.T) {
	ctrl := gomock.NewController(t)
	creds := services.NewMockCredentialStore(ctrl)
	profiles := services.NewMockProfileStore(ctrl)
	hasher := services.NewMockPasswordHasher(ctrl)
	tx := services.NewMockTransactor(ctrl)

	creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
	hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
	tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
	creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).Return(int64(3), nil)
	profiles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)

	svc := services.NewAuthService(creds, profiles, nil, hasher, tx, nil)
	user, err := svc.Register(context.Background(), "john", "John", "Doe", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.ID)
}

func TestAuthService_Register_PublishesEventWithoutSecrets(t *testing.T) {
	m, svc := newAuthMocks(t)
	m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
	m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
	m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
	m.creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).Return(int64(42), nil)
	m.profiles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	m.cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(nil)

	var published kafka.Message
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msgs ...kafka.Message) error {
			require.Len(t, msgs, 1)
			published = msgs[0]
			return nil
		})

	_, err := svc.Register(context.Background(), "john", "John", "Doe", "secret")
	require.NoError(t, err)

	assert.Equal(t, "42", string(published.Key))
	var event models.AccountEvent
	require.NoError(t, json.Unmarshal(published.Value, &event))
	assert.Equal(t, models.EventRegistered, event.Type)
	assert.Equal(t, int64(42), event.UserID)
	assert.Equal(t, "john", event.Username)
	assert.NotEmpty(t, event.EventID)
	assert.NotContains(t, string(published.Value), "secret")
	assert.NotContains(t, string(published.Value), "$2a$hash")
}

func TestAuthService_Register_StalledKafkaDoesNotBlock(t *testing.T) {
	m, svc := newAuthMocks(t)
	svc.SetPublishTimeout(50 * time.Millisecond)

	m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
	m.hasher.EXPECT().Hash(gomock.Any(), "secret").Return("$2a$hash", nil)
	m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(runTx)
	m.creds.EXPECT().Insert(gomock.Any(), "john", "$2a$hash", gomock.Any()).Return(int64(42), nil)
	m.profiles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	m.cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(nil)
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msgs ...kafka.Message) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok, "event write must be bounded")
			<-ctx.Done()
			return ctx.Err()
		})

	start := time.Now()
	user, err := svc.Register(context.Background(), "john", "John", "Doe", "secret")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, int64(42), user.ID)
	assert.Less(t, elapsed, time.Second)
}

func TestAuthService_SignIn_CanceledRequestStillPublishes(t *testing.T) {
	m, svc := newAuthMocks(t)
	ctx, cancel := context.WithCancel(context.Background())

	m.creds.EXPECT().FindByUsername(gomock.Any(), "john").
		Return(&models.Credential{ID: 5, Username: "john", PasswordHash: "$2a$hash"}, nil)
	m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(true, nil)
	m.creds.EXPECT().UpdateLastSeen(gomock.Any(), int64(5), gomock.Any()).
		DoAndReturn(func(context.Context, int64, int64) (int64, error) {
			cancel()
			return 1, nil
		})
	m.cache.EXPECT().Get(gomock.Any(), int64(5)).
		Return(&models.Profile{ID: 5, FirstName: "John", LastName: "Doe", AvatarURL: models.DefaultAvatarURL}, nil)
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msgs ...kafka.Message) error {
			assert.NoError(t, ctx.Err())
			return nil
		})

	_, err := svc.SignIn(ctx, "john", "secret")
	require.NoError(t, err)
}

func TestAuthService_SignIn_Validation(t *testing.T) {
	tests := []struct {
		name               string
		username, password string
	}{
		{name: "missing username", password: "pw"},
		{name: "missing password", username: "john"},
		{name: "both missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc := newAuthMocks(t)

			user, err := svc.SignIn(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, services.ErrValidation)
			assert.Nil(t, user)
		})
	}
}

func TestAuthService_SignIn(t *testing.T) {
	cred := &models.Credential{ID: 42, Username: "john", PasswordHash: "$2a$hash", LastSeen: 100}
	profile := &models.Profile{ID: 42, FirstName: "John", LastName: "Doe", AvatarURL: "pic"}
	wantUser := &models.User{First: "John", Last: "Doe", ID: 42, Picture: "pic"}
	dbErr := errors.New("db error")

	tests := []struct {
		name     string
		password string
		setup    func(m *authMocks)
		wantErr  error
	}{
		{
			name:     "successful sign-in from cache",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(true, nil)
				m.creds.EXPECT().UpdateLastSeen(gomock.Any(), int64(42), gomock.Any()).Return(int64(200), nil)
				m.cache.EXPECT().Get(gomock.Any(), int64(42)).Return(profile, nil)
				m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:     "successful sign-in on cache miss",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(true, nil)
				m.creds.EXPECT().UpdateLastSeen(gomock.Any(), int64(42), gomock.Any()).Return(int64(200), nil)
				m.cache.EXPECT().Get(gomock.Any(), int64(42)).Return(nil, nil)
				m.profiles.EXPECT().GetByID(gomock.Any(), int64(42)).Return(profile, nil)
				m.cache.EXPECT().Set(gomock.Any(), *profile).Return(nil)
				m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:     "cache error falls back to store",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(true, nil)
				m.creds.EXPECT().UpdateLastSeen(gomock.Any(), int64(42), gomock.Any()).Return(int64(200), nil)
				m.cache.EXPECT().Get(gomock.Any(), int64(42)).Return(nil, errors.New("redis down"))
				m.profiles.EXPECT().GetByID(gomock.Any(), int64(42)).Return(profile, nil)
				m.cache.EXPECT().Set(gomock.Any(), *profile).Return(errors.New("redis down"))
				m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("kafka down"))
			},
		},
		{
			name:     "unknown username",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
			},
			wantErr: services.ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			password: "wrong",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "wrong", "$2a$hash").Return(false, nil)
			},
			wantErr: services.ErrInvalidCredentials,
		},
		{
			name:     "lookup error",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, dbErr)
			},
			wantErr: services.ErrPersistence,
		},
		{
			name:     "verify error",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(false, errors.New("malformed hash"))
			},
			wantErr: services.ErrPersistence,
		},
		{
			name:     "last seen update fails",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(true, nil)
				m.creds.EXPECT().UpdateLastSeen(gomock.Any(), int64(42), gomock.Any()).Return(int64(0), dbErr)
			},
			wantErr: services.ErrPersistence,
		},
		{
			name:     "profile fetch fails",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(true, nil)
				m.creds.EXPECT().UpdateLastSeen(gomock.Any(), int64(42), gomock.Any()).Return(int64(200), nil)
				m.cache.EXPECT().Get(gomock.Any(), int64(42)).Return(nil, nil)
				m.profiles.EXPECT().GetByID(gomock.Any(), int64(42)).Return(nil, dbErr)
			},
			wantErr: services.ErrPersistence,
		},
		{
			name:     "profile row missing",
			password: "secret",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "$2a$hash").Return(true, nil)
				m.creds.EXPECT().UpdateLastSeen(gomock.Any(), int64(42), gomock.Any()).Return(int64(200), nil)
				m.cache.EXPECT().Get(gomock.Any(), int64(42)).Return(nil, nil)
				m.profiles.EXPECT().GetByID(gomock.Any(), int64(42)).Return(nil, nil)
			},
			wantErr: services.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, svc := newAuthMocks(t)
			tt.setup(m)

			user, err := svc.SignIn(context.Background(), "john", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, wantUser, user)
		})
	}
}

func TestAuthService_SignIn_UnknownUserAndWrongPasswordAreIndistinguishable(t *testing.T) {
	m, svc := newAuthMocks(t)
	m.creds.EXPECT().FindByUsername(gomock.Any(), "ghost").Return(nil, nil)
	m.creds.EXPECT().FindByUsername(gomock.Any(), "john").
		Return(&models.Credential{ID: 1, Username: "john", PasswordHash: "h"}, nil)
	m.hasher.EXPECT().Verify(gomock.Any(), "wrong", "h").Return(false, nil)

	_, errUnknown := svc.SignIn(context.Background(), "ghost", "wrong")
	_, errWrong := svc.SignIn(context.Background(), "john", "wrong")

	assert.Equal(t, errUnknown, errWrong)
}

func TestAuthService_ValidateByUsername(t *testing.T) {
	cred := &models.Credential{ID: 5, Username: "john", PasswordHash: "h"}

	tests := []struct {
		name    string
		setup   func(m *authMocks)
		want    bool
		wantErr error
	}{
		{
			name: "match",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "pw", "h").Return(true, nil)
			},
			want: true,
		},
		{
			name: "mismatch",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "pw", "h").Return(false, nil)
			},
		},
		{
			name: "unknown user",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, nil)
			},
		},
		{
			name: "store error",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(nil, errors.New("db error"))
			},
			wantErr: services.ErrPersistence,
		},
		{
			name: "verify error",
			setup: func(m *authMocks) {
				m.creds.EXPECT().FindByUsername(gomock.Any(), "john").Return(cred, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "pw", "h").Return(false, errors.New("bad hash"))
			},
			wantErr: services.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, svc := newAuthMocks(t)
			tt.setup(m)

			ok, err := svc.ValidateByUsername(context.Background(), "john", "pw")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAuthService_ValidateByID(t *testing.T) {
	m, svc := newAuthMocks(t)
	cred := &models.Credential{ID: 5, Username: "john", PasswordHash: "h"}

	m.creds.EXPECT().FindByID(gomock.Any(), int64(5)).Return(cred, nil)
	m.hasher.EXPECT().Verify(gomock.Any(), "pw", "h").Return(true, nil)
	ok, err := svc.ValidateByID(context.Background(), 5, "pw")
	assert.NoError(t, err)
	assert.True(t, ok)

	m.creds.EXPECT().FindByID(gomock.Any(), int64(6)).Return(nil, nil)
	ok, err = svc.ValidateByID(context.Background(), 6, "pw")
	assert.NoError(t, err)
	assert.False(t, ok)

	m.creds.EXPECT().FindByID(gomock.Any(), int64(7)).Return(nil, errors.New("db error"))
	ok, err = svc.ValidateByID(context.Background(), 7, "pw")
	assert.ErrorIs(t, err, services.ErrPersistence)
	assert.False(t, ok)
}
