package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neilb14/users-service/internal/auth"
	"github.com/neilb14/users-service/internal/models"
	"github.com/neilb14/users-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// bcrypt ignores everything past 72 bytes and refuses longer input.
const maxPasswordBytes = 72

// UserRepository is the storage the service needs. Implementations must
// enforce username and email uniqueness themselves and report violations
// as repository.ErrDuplicate.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Notifier is told about successful registrations
type Notifier interface {
	SendWelcome(to, username string) error
}

// Service handles business logic
type Service struct {
	repo     UserRepository
	hasher   *auth.Hasher
	tokens   *auth.TokenCodec
	notifier Notifier
	log      *logrus.Logger
	now      func() time.Time
}

// NewService initializes a new service. notifier may be nil.
func NewService(repo UserRepository, hasher *auth.Hasher, tokens *auth.TokenCodec, notifier Notifier, log *logrus.Logger) *Service {
	return &Service{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Register creates a new active user and returns it with a fresh token
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, string, error) {
	user, err := s.createUser(ctx, username, email, password)
	if err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.log.Infof("User registered: %s", user.Email)
	s.welcome(user)
	return user, token, nil
}

// AddUser creates a new active user on behalf of an authenticated caller
func (s *Service) AddUser(ctx context.Context, username, email, password string) (*models.User, error) {
	user, err := s.createUser(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	s.log.Infof("User added: %s", user.Email)
	return user, nil
}

// Login verifies credentials and returns a token. Unknown emails and wrong
// passwords both yield ErrNotFound. The active flag is not checked here.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if blank(email) || blank(password) {
		return "", ErrValidation
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", ErrNotFound
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return "", err
	}

	s.log.Infof("User logged in: %s", user.Email)
	return token, nil
}

// Authenticate resolves a bearer token to its active user. Token failures and
// unknown subjects wrap ErrUnauthorized, inactive users yield ErrForbidden.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.tokens.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown subject %d", ErrUnauthorized, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if !user.Active {
		return nil, ErrForbidden
	}
	return user, nil
}

// GetUser returns a single user
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindUserByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return user, nil
}

// ListUsers returns all users, oldest first
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return users, nil
}

// SetActive enables or disables a user account
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	err := s.repo.SetActive(ctx, id, active)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	s.log.Infof("User %d active=%t", id, active)
	return nil
}

func (s *Service) createUser(ctx context.Context, username, email, password string) (*models.User, error) {
	if blank(username) || blank(email) || blank(password) || len(password) > maxPasswordBytes {
		return nil, ErrValidation
	}

	_, err := s.repo.FindUserByUsernameOrEmail(ctx, username, email)
	if err == nil {
		return nil, ErrConflict
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		Active:       true,
	}

	// The pre-check above can race with a concurrent insert; the storage
	// constraint decides.
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return user, nil
}

func (s *Service) issueToken(userID int64) (string, error) {
	token, err := s.tokens.Encode(userID, s.now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return token, nil
}

func (s *Service) welcome(user *models.User) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendWelcome(user.Email, user.Username); err != nil {
		s.log.Warnf("Welcome email for user %d not sent: %v", user.ID, err)
	}
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}
