package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/schoolhub/apiserver/internal/auth"
	"github.com/schoolhub/apiserver/internal/store"
	"github.com/schoolhub/apiserver/types"
)

var (
	// ErrMissingCredentials is returned when email or password is empty.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials covers unknown email, wrong password and
	// inactive account without distinguishing them.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUser is returned when a new user fails validation.
	ErrInvalidUser = errors.New("invalid user")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	FindActiveByID(ctx context.Context, id string) (types.User, error)
	ListByBranch(ctx context.Context, branchID string, offset, limit int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

// UserService encapsulates login and account use-cases.
type UserService struct {
	repo   UserRepository
	events EventPublisher
	now    func() time.Time
	logger *log.Logger
}

// UserServiceOption configures a UserService.
type UserServiceOption func(*UserService)

// WithEventPublisher publishes login and deactivation events.
func WithEventPublisher(events EventPublisher) UserServiceOption {
	return func(s *UserService) {
		s.events = events
	}
}

// WithUserClock overrides the clock used for last-login timestamps.
func WithUserClock(now func() time.Time) UserServiceOption {
	return func(s *UserService) {
		s.now = now
	}
}

// WithUserLogger overrides the logger used for non-fatal failures.
func WithUserLogger(logger *log.Logger) UserServiceOption {
	return func(s *UserService) {
		s.logger = logger
	}
}

func NewUserService(repo UserRepository, opts ...UserServiceOption) *UserService {
	s := &UserService{
		repo:   repo,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindActiveByID satisfies auth.ActiveUserFinder.
func (s *UserService) FindActiveByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.FindActiveByID(ctx, id)
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Login verifies credentials and records the login time. Unknown email,
// wrong password and inactive account all return ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (types.AuthUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return types.AuthUser{}, ErrMissingCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.BurnPasswordCheck(password)
			return types.AuthUser{}, ErrInvalidCredentials
		}
		return types.AuthUser{}, fmt.Errorf("load user: %w", err)
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		return types.AuthUser{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return types.AuthUser{}, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return types.AuthUser{}, fmt.Errorf("update last login: %w", err)
	}

	authUser := user.AuthUser()
	s.publish(ctx, ChannelLogin, LoginEvent{
		UserID:   authUser.ID,
		SchoolID: authUser.SchoolID,
		BranchID: authUser.BranchID,
		Role:     authUser.Role,
		At:       now,
	})
	return authUser, nil
}

// NewUser is the input for creating an account.
type NewUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      types.Role
	SchoolID  string
	BranchID  *string
}

// Create hashes the password and stores an active user.
func (s *UserService) Create(ctx context.Context, input NewUser) (types.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	switch {
	case input.Email == "" || input.Password == "":
		return types.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidUser)
	case !input.Role.Valid():
		return types.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, input.Role)
	case strings.TrimSpace(input.SchoolID) == "":
		return types.User{}, fmt.Errorf("%w: school is required", ErrInvalidUser)
	case input.Role.BranchScoped() && (input.BranchID == nil || strings.TrimSpace(*input.BranchID) == ""):
		return types.User{}, fmt.Errorf("%w: role %s requires a branch", ErrInvalidUser, input.Role)
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        input.Email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         input.Role,
		SchoolID:     input.SchoolID,
		BranchID:     input.BranchID,
		IsActive:     true,
	})
	if errors.Is(err, store.ErrInvalidReference) {
		return types.User{}, fmt.Errorf("%w: branch is not part of school %s", ErrInvalidUser, input.SchoolID)
	}
	return user, err
}

// SetActive toggles the account. Deactivation ends every session of the
// user on its next request.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	if !active {
		s.publish(ctx, ChannelUserDeactivated, DeactivationEvent{UserID: id, At: s.now()})
	}
	return nil
}

func (s *UserService) ListByBranch(ctx context.Context, branchID string, offset, limit int) ([]types.User, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListByBranch(ctx, branchID, offset, limit)
}

func (s *UserService) publish(ctx context.Context, channel string, event any) {
	if s.events == nil {
		return
	}
	if err := publishEvent(ctx, s.events, channel, event); err != nil {
		s.logger.Printf("event publish failed channel=%s err=%v", channel, err)
	}
}
