package auth

import (
	"context"
	"errors"
	"testing"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/logging"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) IncrementTokenVersion(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockUserRepository) List(ctx context.Context, offset, limit int) ([]*models.User, int64, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]*models.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepository) UpdateStatus(ctx context.Context, userID uuid.UUID, status string) error {
	return m.Called(ctx, userID, status).Error(0)
}

func (m *MockUserRepository) TouchLogin(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

var secrets = Secrets{Access: "access-secret", Refresh: "refresh-secret"}

const password = "correct-horse-battery!"

func operator(t *testing.T) *models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           uuid.New(),
		Email:        "ops@example.com",
		Password:     string(hashed),
		Name:         "Ops",
		Role:         models.RoleOperator,
		Status:       models.UserStatusActive,
		TokenVersion: 3,
	}
}

func TestLogin(t *testing.T) {
	user := operator(t)

	tests := []struct {
		name     string
		email    string
		password string
		setup    func(*MockUserRepository)
		wantErr  error
	}{
		{
			name:     "success",
			email:    " OPS@example.com ",
			password: password,
			setup: func(repo *MockUserRepository) {
				repo.On("GetByEmail", mock.Anything, "ops@example.com").Return(user, nil)
				repo.On("TouchLogin", mock.Anything, user.ID).Return(nil)
			},
		},
		{
			name:     "unknown user",
			email:    "nobody@example.com",
			password: password,
			setup: func(repo *MockUserRepository) {
				repo.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, repositories.ErrUserNotFound)
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			email:    "ops@example.com",
			password: "wrong-password!",
			setup: func(repo *MockUserRepository) {
				repo.On("GetByEmail", mock.Anything, "ops@example.com").Return(user, nil)
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:     "database down",
			email:    "ops@example.com",
			password: password,
			setup: func(repo *MockUserRepository) {
				repo.On("GetByEmail", mock.Anything, "ops@example.com").Return(nil, errors.New("dial tcp"))
			},
			wantErr: apperrors.ErrDependencyUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserRepository)
			tt.setup(repo)
			svc := NewService(repo, secrets, logging.Discard())

			got, access, refresh, err := svc.Login(context.Background(), tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, user.ID, got.ID)
				assert.NotEmpty(t, access)
				assert.NotEmpty(t, refresh)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	user := operator(t)
	user.Status = models.UserStatusDisabled
	repo := new(MockUserRepository)
	repo.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

	_, _, _, err := NewService(repo, secrets, logging.Discard()).Login(context.Background(), user.Email, password)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAuthenticate(t *testing.T) {
	user := operator(t)
	access, refresh, err := utils.GenerateTokens(&models.UserClaims{
		UserID:       user.ID.String(),
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		Permissions:  models.GetDefaultPermissions(user.Role),
	}, secrets.Access, secrets.Refresh)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		repo := new(MockUserRepository)
		repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
		claims, err := NewService(repo, secrets, logging.Discard()).Authenticate(context.Background(), access)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.UserID)
		assert.Equal(t, models.RoleOperator, claims.Role)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		repo := new(MockUserRepository)
		_, err := NewService(repo, secrets, logging.Discard()).Authenticate(context.Background(), refresh)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("logged out since", func(t *testing.T) {
		bumped := *user
		bumped.TokenVersion++
		repo := new(MockUserRepository)
		repo.On("GetByID", mock.Anything, user.ID).Return(&bumped, nil)
		_, err := NewService(repo, secrets, logging.Discard()).Authenticate(context.Background(), access)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := NewService(new(MockUserRepository), secrets, logging.Discard()).Authenticate(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshTokens(t *testing.T) {
	user := operator(t)
	_, refresh, err := utils.GenerateTokens(&models.UserClaims{UserID: user.ID.String(), Role: user.Role, TokenVersion: user.TokenVersion}, secrets.Access, secrets.Refresh)
	require.NoError(t, err)

	repo := new(MockUserRepository)
	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	svc := NewService(repo, secrets, logging.Discard())

	access, _, err := svc.RefreshTokens(context.Background(), refresh)
	require.NoError(t, err)
	_, claims, err := utils.ParseToken(access, secrets.Access)
	require.NoError(t, err)
	assert.Equal(t, models.GetDefaultPermissions(models.RoleOperator), claims.Permissions)

	stale := *user
	stale.TokenVersion = 99
	repo = new(MockUserRepository)
	repo.On("GetByID", mock.Anything, user.ID).Return(&stale, nil)
	_, _, err = NewService(repo, secrets, logging.Discard()).RefreshTokens(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogout(t *testing.T) {
	id := uuid.New()
	repo := new(MockUserRepository)
	repo.On("IncrementTokenVersion", mock.Anything, id).Return(nil)

	assert.NoError(t, NewService(repo, secrets, logging.Discard()).Logout(context.Background(), id))
	repo.AssertExpectations(t)
}

func TestCreateUser(t *testing.T) {
	t.Run("rejects weak password", func(t *testing.T) {
		_, err := NewService(new(MockUserRepository), secrets, logging.Discard()).CreateUser(context.Background(), "a@b.c", "A", "short", models.RoleOperator)
		assert.ErrorIs(t, err, ErrWeakPassword)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		_, err := NewService(new(MockUserRepository), secrets, logging.Discard()).CreateUser(context.Background(), "a@b.c", "A", password, "root")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("email taken", func(t *testing.T) {
		repo := new(MockUserRepository)
		repo.On("Create", mock.Anything, mock.AnythingOfType("*models.User")).Return(repositories.ErrEmailTaken)
		_, err := NewService(repo, secrets, logging.Discard()).CreateUser(context.Background(), "a@b.c", "A", password, models.RoleOperator)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("hashes password", func(t *testing.T) {
		repo := new(MockUserRepository)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
			return u.Email == "new@example.com" && u.Role == models.RoleScorer
		})).Return(nil)

		user, err := NewService(repo, secrets, logging.Discard()).CreateUser(context.Background(), "New@Example.com", "Scorer", password, models.RoleScorer)
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)))
		assert.Equal(t, 1, user.TokenVersion)
		repo.AssertExpectations(t)
	})
}
