package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/asfrgrtgd/intcode-judge/internal/store"
)

// User is the authenticated principal returned to handlers.
type User struct {
	ID        int64
	Username  string
	Role      string
	CreatedAt time.Time
}

// ErrInvalidCredentials is returned when username/password is wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService authenticates a username/password pair.
type AuthService interface {
	Authenticate(username, password string) (User, error)
}

// RepositoryAuthService authenticates against a store.UserRepository using bcrypt.
type RepositoryAuthService struct {
	users store.UserRepository
}

func NewRepositoryAuthService(users store.UserRepository) *RepositoryAuthService {
	return &RepositoryAuthService{users: users}
}

func (s *RepositoryAuthService) Authenticate(username, password string) (User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil || u == nil {
		return User{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}

	return User{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}, nil
}
