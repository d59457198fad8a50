package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	apperrors "github.com/Peterdir/travel-booking-website/internal/errors"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/repository"
)

const minPasswordLength = 6

type AuthService struct {
	users  UserStore
	tokens *auth.TokenManager
}

func NewAuthService(users UserStore, tokens *auth.TokenManager) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Register создает клиента. Роль admin через регистрацию не выдается.
func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	return s.createUser(ctx, req.Email, req.Password, req.FullName, models.RoleCustomer)
}

func (s *AuthService) createUser(ctx context.Context, email, password, fullName string, role models.Role) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", apperrors.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, minPasswordLength)
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email is already registered", apperrors.ErrConflict)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, fmt.Errorf("%w: email is already registered", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.WithContext(ctx).Info("User registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login проверяет пароль и выпускает токен
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthorized)
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthorized)
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// Me возвращает текущего пользователя
func (s *AuthService) Me(ctx context.Context, identity auth.Identity) (*models.User, error) {
	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, apperrors.ErrUnauthorized
	}
	return user, nil
}

// EnsureAdmin создает администратора, если его еще нет
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	existing, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if existing != nil {
		if existing.Role != models.RoleAdmin {
			slog.Warn("Bootstrap admin email belongs to a non-admin account", "user_id", existing.ID)
		}
		return nil
	}

	user, err := s.createUser(ctx, email, password, "Administrator", models.RoleAdmin)
	if err != nil {
		return err
	}
	slog.Info("Admin account created", "user_id", user.ID)
	return nil
}
