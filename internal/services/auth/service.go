// Package auth authenticates console operators and issues their tokens.
package auth

import (
	"context"
	"errors"
	"strings"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = apperrors.ErrUnauthorized.WithMessage("invalid credentials")
	ErrInvalidToken       = apperrors.ErrUnauthorized.WithMessage("invalid token")
	ErrSessionExpired     = apperrors.ErrUnauthorized.WithMessage("session expired")
	ErrAccountDisabled    = apperrors.ErrForbidden.WithMessage("account disabled")
	ErrWeakPassword       = apperrors.ErrValidation.WithMessage("password must be at least 12 characters and contain special characters")
)

type Service interface {
	Login(ctx context.Context, email, password string) (*models.User, string, string, error)
	RefreshTokens(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	// Authenticate validates an access token against the current token version.
	Authenticate(ctx context.Context, accessToken string) (*models.UserClaims, error)
	CreateUser(ctx context.Context, email, name, password, role string) (*models.User, error)
}

type Secrets struct {
	Access  string
	Refresh string
}

type service struct {
	userRepo repositories.UserRepository
	secrets  Secrets
	log      *logrus.Logger
}

func NewService(userRepo repositories.UserRepository, secrets Secrets, log *logrus.Logger) Service {
	return &service{
		userRepo: userRepo,
		secrets:  secrets,
		log:      log,
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*models.User, string, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.log.WithField("email", email).Info("login failed: unknown user")
			return nil, "", "", ErrInvalidCredentials
		}
		return nil, "", "", apperrors.Unavailable(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.log.WithField("user_id", user.ID).Info("login failed: incorrect password")
		return nil, "", "", ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return nil, "", "", ErrAccountDisabled
	}

	accessToken, refreshToken, err := s.issue(user)
	if err != nil {
		return nil, "", "", err
	}
	if err := s.userRepo.TouchLogin(ctx, user.ID); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("failed to record login")
	}
	return user, accessToken, refreshToken, nil
}

func (s *service) issue(user *models.User) (string, string, error) {
	access, refresh, err := utils.GenerateTokens(&models.UserClaims{
		UserID:       user.ID.String(),
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		Permissions:  models.GetDefaultPermissions(user.Role),
	}, s.secrets.Access, s.secrets.Refresh)
	if err != nil {
		s.log.WithError(err).Error("error generating tokens")
		return "", "", errors.New("error generating tokens")
	}
	return access, refresh, nil
}

// currentUser loads the token's user and checks that the token is still live.
func (s *service) currentUser(ctx context.Context, claims *models.UserClaims) (*models.User, error) {
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, apperrors.Unavailable(err)
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, ErrSessionExpired
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

func (s *service) RefreshTokens(ctx context.Context, refreshToken string) (string, string, error) {
	_, claims, err := utils.ParseToken(refreshToken, s.secrets.Refresh)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	user, err := s.currentUser(ctx, claims)
	if err != nil {
		return "", "", err
	}
	return s.issue(user)
}

func (s *service) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.IncrementTokenVersion(ctx, userID); err != nil {
		return apperrors.Unavailable(err)
	}
	return nil
}

func (s *service) Authenticate(ctx context.Context, accessToken string) (*models.UserClaims, error) {
	_, claims, err := utils.ParseToken(accessToken, s.secrets.Access)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := s.currentUser(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *service) CreateUser(ctx context.Context, email, name, password, role string) (*models.User, error) {
	switch role {
	case models.RoleAdmin, models.RoleOperator, models.RoleScorer:
	default:
		return nil, apperrors.ErrValidation.WithMessage("unknown role " + role)
	}
	if !utils.IsStrongPassword(password) {
		return nil, ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}
	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Password:     string(hashed),
		Name:         name,
		Role:         role,
		Status:       models.UserStatusActive,
		TokenVersion: 1,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			return nil, apperrors.ErrValidation.WithMessage("email already taken")
		}
		return nil, apperrors.Unavailable(err)
	}
	return user, nil
}
