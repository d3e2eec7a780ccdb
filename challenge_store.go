package brewauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// challengeMaxAttempts bounds wrong-code submissions against one open
// challenge. A six-digit code space is small enough to brute-force inside
// the challenge TTL without a cap.
const challengeMaxAttempts = 5

var (
	errChallengeNotFound         = errors.New("login challenge not found")
	errChallengeRedisUnavailable = errors.New("login challenge redis unavailable")
)

// loginChallengeStore marks accounts that have passed the password check
// but still owe a second factor. The mark is keyed by account id with a
// short TTL; the follow-up code or backup-code submission must land
// inside the window or the client restarts the login.
type loginChallengeStore struct {
	redis  *redis.Client
	prefix string
}

func newLoginChallengeStore(redisClient *redis.Client, keyPrefix, challengePrefix string) *loginChallengeStore {
	return &loginChallengeStore{
		redis:  redisClient,
		prefix: keyPrefix + ":" + challengePrefix,
	}
}

func (s *loginChallengeStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

func (s *loginChallengeStore) attemptsKey(accountID string) string {
	return s.key(accountID) + ":attempts"
}

// Open records a pending second-factor challenge for the account.
func (s *loginChallengeStore) Open(ctx context.Context, accountID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(accountID), []byte{1}, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}

// Active reports whether a challenge is open for the account.
func (s *loginChallengeStore) Active(ctx context.Context, accountID string) (bool, error) {
	err := s.redis.Get(ctx, s.key(accountID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return true, nil
}

// Fail counts a wrong-code submission against the open challenge. Once
// the cap is reached the challenge and its counter are consumed, forcing
// the caller back to the password step.
func (s *loginChallengeStore) Fail(ctx context.Context, accountID string, ttl time.Duration) (exhausted bool, err error) {
	count, err := s.redis.Incr(ctx, s.attemptsKey(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, s.attemptsKey(accountID), ttl).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
		}
	}
	if count < challengeMaxAttempts {
		return false, nil
	}
	if err := s.redis.Del(ctx, s.key(accountID), s.attemptsKey(accountID)).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return true, nil
}

// Close consumes the challenge. It fails when no challenge is open,
// which keeps the second-factor endpoints from acting as a password-free
// login path.
func (s *loginChallengeStore) Close(ctx context.Context, accountID string) error {
	removed, err := s.redis.Del(ctx, s.key(accountID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	if removed == 0 {
		return errChallengeNotFound
	}
	if err := s.redis.Del(ctx, s.attemptsKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}
