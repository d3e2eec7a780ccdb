package brewauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetRecordVersionV1 = 1

var (
	errResetNotFound         = errors.New("reset record not found")
	errResetRedisUnavailable = errors.New("reset redis unavailable")
)

type resetRecord struct {
	AccountID string
	ExpiresAt int64
}

// resetTokenStore keeps single-use password-reset records in Redis,
// keyed by the token's SHA-256 hash. A per-account pointer key enforces
// the single-in-flight rule: issuing a new token invalidates the prior
// one.
type resetTokenStore struct {
	redis  *redis.Client
	prefix string
}

func newResetTokenStore(redisClient *redis.Client, keyPrefix, resetPrefix string) *resetTokenStore {
	return &resetTokenStore{
		redis:  redisClient,
		prefix: keyPrefix + ":" + resetPrefix,
	}
}

func (s *resetTokenStore) tokenKey(tokenHash [32]byte) string {
	return s.prefix + ":" + hex.EncodeToString(tokenHash[:])
}

func (s *resetTokenStore) accountKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *resetTokenStore) Save(
	ctx context.Context,
	tokenHash [32]byte,
	record *resetRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeResetRecord(record)
	if err != nil {
		return err
	}

	acctKey := s.accountKey(record.AccountID)
	prior, err := s.redis.Get(ctx, acctKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prior != "" {
			pipe.Del(ctx, s.prefix+":"+prior)
		}
		pipe.Set(ctx, s.tokenKey(tokenHash), encoded, ttl)
		pipe.Set(ctx, acctKey, hex.EncodeToString(tokenHash[:]), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
	}

	return nil
}

// Consume describes the consume operation and its observable behavior.
//
// Consume may return an error when input validation, dependency calls, or security checks fail.
// Consume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *resetTokenStore) Consume(ctx context.Context, tokenHash [32]byte, now time.Time) (*resetRecord, error) {
	const maxRetries = 4
	key := s.tokenKey(tokenHash)

	for i := 0; i < maxRetries; i++ {
		var matched *resetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeResetRecord(data)
			if err != nil {
				return err
			}

			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.Del(ctx, s.accountKey(record.AccountID))
					return nil
				})
				if err != nil {
					return err
				}
				return errResetNotFound
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Del(ctx, s.accountKey(record.AccountID))
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, errResetNotFound):
				return nil, errResetNotFound
			default:
				return nil, fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errResetNotFound
}

func encodeResetRecord(record *resetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("reset record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	return buf.Bytes(), nil
}

func decodeResetRecord(data []byte) (*resetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &resetRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountIDLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, accountIDLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	return record, nil
}
