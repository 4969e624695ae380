package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotAuthenticated means the user has to log in again; it is never retried.
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrWrongCredentials = errors.New("wrong username or password")
	ErrSessionNotFound  = errors.New("login session not found")
	errMalformedSession = errors.New("malformed login session")
)

const (
	sessionKeyPrefix = "liftlog-session||"
	tokensSetKey     = "liftlog-sessions"
	tokenLength      = 35
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginSession is stored in redis as "<user id>|<created at unix>".
type LoginSession struct {
	Token     string
	UserID    string
	CreatedAt time.Time
}

// Identity is the result of resolving a token. Token differs from the one
// presented when the session had to be refreshed.
type Identity struct {
	UserID    string
	Token     string
	Refreshed bool
}

func (s LoginSession) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

func (s LoginSession) encode() string {
	return fmt.Sprintf("%s|%d", s.UserID, s.CreatedAt.Unix())
}

func decodeSession(token, val string) (LoginSession, error) {
	userID, createdAtStr, found := strings.Cut(val, "|")
	if !found || userID == "" {
		return LoginSession{}, fmt.Errorf("%w: [%s]", errMalformedSession, val)
	}
	createdAtUnix, err := strconv.ParseInt(createdAtStr, 10, 64)
	if err != nil {
		return LoginSession{}, fmt.Errorf("%w: created at: %w", errMalformedSession, err)
	}
	return LoginSession{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Unix(createdAtUnix, 0),
	}, nil
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}
