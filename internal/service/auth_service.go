package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"task-manager/internal/domain"
	"task-manager/internal/password"
	"task-manager/internal/repository"
	"task-manager/internal/token"
)

// AuthService implements registration and the token lifecycle.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

type authService struct {
	users     repository.UserRepository
	hasher    password.Hasher
	tokens    *token.Service
	log       logrus.FieldLogger
	dummyHash string
}

func NewAuthService(users repository.UserRepository, hasher password.Hasher, tokens *token.Service, log logrus.FieldLogger) (AuthService, error) {
	// verified against when the username is unknown so both login failures cost the same
	dummy, err := hasher.Hash("task-manager-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &authService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		log:       log.WithField("component", "auth"),
		dummyHash: dummy,
	}, nil
}

func (s *authService) Register(ctx context.Context, username, email, pwd string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if pwd == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: lookup email: %v", ErrInternal, err)
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: lookup username: %v", ErrInternal, err)
	}

	hash, err := s.hasher.Hash(pwd)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: hash password: %v", ErrInternal, err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		// a concurrent registration can pass the lookups and lose at the constraint
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrDuplicateUsername
		default:
			return nil, fmt.Errorf("%w: create user: %v", ErrInternal, err)
		}
	}

	s.log.WithField("user_id", user.ID).Info("user registered")
	return sanitizeUser(user), nil
}

func (s *authService) Login(ctx context.Context, username, pwd string) (token.Pair, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.hasher.Verify(pwd, s.dummyHash)
		return token.Pair{}, ErrInvalidCredentials
	case err != nil:
		return token.Pair{}, fmt.Errorf("%w: lookup user: %v", ErrInternal, err)
	}

	if !s.hasher.Verify(pwd, user.PasswordHash) {
		return token.Pair{}, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(user.Username)
	if err != nil {
		return token.Pair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// not invalidated and stays usable until it expires.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	user, err := s.resolve(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		return token.Pair{}, err
	}

	pair, err := s.tokens.IssuePair(user.Username)
	if err != nil {
		return token.Pair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return pair, nil
}

func (s *authService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	user, err := s.resolve(ctx, accessToken, token.TypeAccess)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *authService) resolve(ctx context.Context, raw string, want token.Type) (*domain.User, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}

	switch claims.Type {
	case want:
	case token.TypeAccess, token.TypeRefresh:
		return nil, ErrWrongTokenType
	default:
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUnknownSubject
	case err != nil:
		return nil, fmt.Errorf("%w: lookup subject: %v", ErrInternal, err)
	}
	return user, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
