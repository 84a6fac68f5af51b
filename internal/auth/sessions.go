package auth

import "github.com/xtrntr/cxgame/internal/staticerr"

// Sessions maps live connections to the user they authenticated as. It is
// the only authority on whether a connection is authenticated.
type Sessions struct {
	users map[string]string // connection id -> username
}

func NewSessions() *Sessions {
	return &Sessions{users: make(map[string]string)}
}

// Bind marks conn as authenticated for username, replacing any earlier user.
func (s *Sessions) Bind(conn, username string) {
	s.users[conn] = username
}

// User returns the user bound to conn.
func (s *Sessions) User(conn string) (string, bool) {
	u, ok := s.users[conn]
	return u, ok
}

// Require returns the user bound to conn or an AuthError.
func (s *Sessions) Require(conn string) (string, error) {
	u, ok := s.users[conn]
	if !ok {
		return "", staticerr.Auth("Must be authenticated.")
	}
	return u, nil
}

// Unbind forgets conn. Unknown connections are ignored.
func (s *Sessions) Unbind(conn string) {
	delete(s.users, conn)
}

func (s *Sessions) Len() int { return len(s.users) }
