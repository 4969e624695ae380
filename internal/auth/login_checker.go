package auth

import (
	"context"
	"errors"
	"time"

	"github.com/2beens/liftlog/pkg"

	"github.com/coocood/freecache"
	"github.com/go-redis/redis/v8"
)

const (
	defaultCheckerCacheSize = 10 * 1024 * 1024
	checkerCacheExpire      = 60 // seconds
)

// LoginChecker resolves tokens to login sessions, with a small local cache in front of redis.
type LoginChecker struct {
	ttl         time.Duration
	redisClient *redis.Client
	cache       *freecache.Cache
	now         func() time.Time
}

func NewLoginChecker(ttl time.Duration, redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		ttl:         ttl,
		redisClient: redisClient,
		cache:       freecache.NewCache(defaultCheckerCacheSize),
		now:         time.Now,
	}
}

// Lookup returns the stored session regardless of its age; ErrSessionNotFound if there is none.
func (c *LoginChecker) Lookup(ctx context.Context, token string) (LoginSession, error) {
	key := []byte(sessionKey(token))
	if cached, err := c.cache.Get(key); err == nil {
		if s, err := decodeSession(token, pkg.BytesToString(cached)); err == nil {
			return s, nil
		}
		c.cache.Del(key)
	}

	val, err := c.redisClient.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return LoginSession{}, ErrSessionNotFound
	}
	if err != nil {
		return LoginSession{}, err
	}

	s, err := decodeSession(token, val)
	if err != nil {
		return LoginSession{}, err
	}
	// cache errors only mean the next lookup goes to redis again
	_ = c.cache.Set(key, []byte(val), checkerCacheExpire)
	return s, nil
}

func (c *LoginChecker) IsLogged(ctx context.Context, token string) (bool, error) {
	s, err := c.Lookup(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !s.Expired(c.now(), c.ttl), nil
}

// Forget drops the token from the local cache, used on logout and refresh.
func (c *LoginChecker) Forget(token string) {
	c.cache.Del([]byte(sessionKey(token)))
}
