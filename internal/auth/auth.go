package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/cxgame/internal/staticerr"
)

// AuthService registers users and checks their tokens. A token is a signed
// JWT naming the user; only the most recently issued token id is accepted.
//
// AuthService is not safe for concurrent use; the command processor
// serializes access.
type AuthService struct {
	secret    []byte
	whitelist map[string]bool
	userLimit int
	now       func() time.Time

	tokenIDs map[string]string // username -> jti
	order    []string
}

// Options configure registration policy.
type Options struct {
	// Secret signs issued tokens.
	Secret []byte
	// Whitelist, when non-empty, restricts registration to these names.
	Whitelist []string
	// UserLimit caps the number of registered users; zero means no cap.
	UserLimit int
}

// NewAuthService creates a new auth service
func NewAuthService(opts Options) (*AuthService, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("token secret cannot be empty")
	}
	s := &AuthService{
		secret:    opts.Secret,
		userLimit: opts.UserLimit,
		now:       time.Now,
		tokenIDs:  make(map[string]string),
	}
	if len(opts.Whitelist) > 0 {
		s.whitelist = make(map[string]bool, len(opts.Whitelist))
		for _, name := range opts.Whitelist {
			s.whitelist[name] = true
		}
	}
	return s, nil
}

// CanRegister validates a registration without changing anything.
func (s *AuthService) CanRegister(username string) error {
	if username == "" {
		return staticerr.Validation("Missing \"username\" in params.")
	}
	if _, exists := s.tokenIDs[username]; exists {
		return staticerr.Auth("User already registered.")
	}
	if s.whitelist != nil && !s.whitelist[username] {
		return staticerr.Auth("User not in whitelist.")
	}
	if s.userLimit > 0 && len(s.tokenIDs) >= s.userLimit {
		return staticerr.Auth("User limit reached (%d)", s.userLimit)
	}
	return nil
}

// Register records username and returns its token.
func (s *AuthService) Register(username string) (string, error) {
	if err := s.CanRegister(username); err != nil {
		return "", err
	}
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  username,
		ID:       jti,
		IssuedAt: jwt.NewNumericDate(s.now()),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	s.tokenIDs[username] = jti
	s.order = append(s.order, username)
	return signed, nil
}

// Authenticate checks a username and token pair.
func (s *AuthService) Authenticate(username, tokenString string) error {
	if username == "" {
		return staticerr.Validation("Missing \"username\" in params.")
	}
	if tokenString == "" {
		return staticerr.Validation("Missing \"token\" in params.")
	}
	jti, ok := s.tokenIDs[username]
	if !ok {
		return staticerr.Auth("User is not registered.")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Subject != username || claims.ID != jti {
		return staticerr.Auth("Authentication failed: Invalid token.")
	}
	return nil
}

// Users returns registered usernames in registration order.
func (s *AuthService) Users() []string {
	return append([]string(nil), s.order...)
}

// AdminGate checks the shared admin secret against a bcrypt hash.
type AdminGate struct {
	hash []byte
}

// NewAdminGate hashes secret with cost.
func NewAdminGate(secret string, cost int) (*AdminGate, error) {
	if secret == "" {
		return nil, errors.New("admin secret cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin secret: %w", err)
	}
	return &AdminGate{hash: hash}, nil
}

// Check returns nil when secret matches.
func (g *AdminGate) Check(secret string) error {
	if secret == "" {
		return staticerr.Validation("Admin secret required.")
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(secret)); err != nil {
		return staticerr.Auth("Invalid admin secret.")
	}
	return nil
}
