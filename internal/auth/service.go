package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTTL          = 24 * 7 * time.Hour
	DefaultRefreshGrace = 24 * time.Hour
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=auth

type usersRepo interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
}

type Service struct {
	users        usersRepo
	checker      *LoginChecker
	redisClient  *redis.Client
	ttl          time.Duration
	refreshGrace time.Duration
	now          func() time.Time
	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
}

func NewService(
	users usersRepo,
	checker *LoginChecker,
	ttl time.Duration,
	refreshGrace time.Duration,
	redisClient *redis.Client,
) *Service {
	return &Service{
		users:          users,
		checker:        checker,
		redisClient:    redisClient,
		ttl:            ttl,
		refreshGrace:   refreshGrace,
		now:            time.Now,
		RandStringFunc: pkg.GenerateRandomString,
	}
}

func (s *Service) Login(ctx context.Context, creds Credentials) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.login")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	user, err := s.users.GetByUsername(ctx, creds.Username)
	if errors.Is(err, ErrUserNotFound) {
		return "", ErrWrongCredentials
	}
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if !pkg.CheckPasswordHash(creds.Password, user.PasswordHash) {
		return "", ErrWrongCredentials
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	return s.newSession(ctx, user.ID)
}

func (s *Service) newSession(ctx context.Context, userID string) (string, error) {
	token, err := s.RandStringFunc(tokenLength)
	if err != nil {
		return "", err
	}

	session := LoginSession{
		Token:     token,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if err := s.redisClient.Set(ctx, sessionKey(token), session.encode(), 0).Err(); err != nil {
		return "", err
	}
	// add token to the set of sessions, so ScanAndClean can find it
	if err := s.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Logout removes the session and returns the user it belonged to.
func (s *Service) Logout(ctx context.Context, token string) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.logout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	session, err := s.checker.Lookup(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.removeSession(ctx, token); err != nil {
		return "", err
	}
	return session.UserID, nil
}

func (s *Service) removeSession(ctx context.Context, token string) error {
	s.checker.Forget(token)
	if err := s.redisClient.Del(ctx, sessionKey(token)).Err(); err != nil {
		return err
	}
	return s.redisClient.SRem(ctx, tokensSetKey, token).Err()
}

// Refresh swaps the token for a new one. Only sessions younger than TTL plus the grace
// window can be refreshed; anything else needs a new login.
func (s *Service) Refresh(ctx context.Context, token string) (_ Identity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.refresh")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	session, err := s.checker.Lookup(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return Identity{}, ErrNotAuthenticated
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if session.Expired(s.now(), s.ttl+s.refreshGrace) {
		return Identity{}, ErrNotAuthenticated
	}

	newToken, err := s.newSession(ctx, session.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: new session: %w", ErrNotAuthenticated, err)
	}
	if err := s.removeSession(ctx, token); err != nil {
		log.Errorf("auth service, refresh, remove old session: %s", err)
	}

	return Identity{
		UserID:    session.UserID,
		Token:     newToken,
		Refreshed: true,
	}, nil
}

// CurrentUser resolves the token to a user. An expired session gets exactly one refresh attempt.
func (s *Service) CurrentUser(ctx context.Context, token string) (_ Identity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.currentuser")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if token == "" {
		return Identity{}, ErrNotAuthenticated
	}

	session, err := s.checker.Lookup(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return Identity{}, ErrNotAuthenticated
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if !session.Expired(s.now(), s.ttl) {
		return Identity{UserID: session.UserID, Token: token}, nil
	}

	span.AddEvent("session expired, refreshing")
	return s.Refresh(ctx, token)
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
// (older than the TTL and the refresh grace window).
func (s *Service) ScanAndClean(ctx context.Context) {
	sessionTokens, err := s.redisClient.SMembers(ctx, tokensSetKey).Result()
	if err != nil {
		log.Errorf("auth service, scan and clean, get sessions: %s", err)
		return
	}
	if len(sessionTokens) == 0 {
		log.Debugln("auth service, scan and clean abort, no sessions")
		return
	}

	log.Debugf("auth service, scan and clean [%d sessions] start ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		val, err := s.redisClient.Get(ctx, sessionKey(token)).Result()
		if errors.Is(err, redis.Nil) {
			toRemove = append(toRemove, token)
			continue
		}
		if err != nil {
			log.Errorf("auth service, scan and clean token %s: %s", token, err)
			continue
		}

		session, err := decodeSession(token, val)
		if err != nil || session.Expired(s.now(), s.ttl+s.refreshGrace) {
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		if err := s.removeSession(ctx, token); err != nil {
			log.Errorf("auth service, clean token %s: %s", token, err)
		}
	}
}
