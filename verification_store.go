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

const verificationRecordVersionV1 = 1

var (
	errVerificationNotFound         = errors.New("verification record not found")
	errVerificationRedisUnavailable = errors.New("verification redis unavailable")
)

type verificationRecord struct {
	AccountID string
	Address   string
	ExpiresAt int64
}

// verificationStore keeps the single in-flight secondary-email
// verification per account in Redis, keyed by the token's SHA-256 hash.
// Saving a new record for an account overwrites and invalidates the
// prior pending one.
type verificationStore struct {
	redis  *redis.Client
	prefix string
}

func newVerificationStore(redisClient *redis.Client, keyPrefix, verifyPrefix string) *verificationStore {
	return &verificationStore{
		redis:  redisClient,
		prefix: keyPrefix + ":" + verifyPrefix,
	}
}

func (s *verificationStore) tokenKey(tokenHash [32]byte) string {
	return s.prefix + ":" + hex.EncodeToString(tokenHash[:])
}

func (s *verificationStore) accountKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *verificationStore) Save(
	ctx context.Context,
	tokenHash [32]byte,
	record *verificationRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeVerificationRecord(record)
	if err != nil {
		return err
	}

	acctKey := s.accountKey(record.AccountID)
	prior, err := s.redis.Get(ctx, acctKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
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
		return fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}

	return nil
}

// Pending returns the in-flight verification for an account, if any.
func (s *verificationStore) Pending(ctx context.Context, accountID string, now time.Time) (*verificationRecord, error) {
	pointer, err := s.redis.Get(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errVerificationNotFound
		}
		return nil, fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}

	data, err := s.redis.Get(ctx, s.prefix+":"+pointer).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errVerificationNotFound
		}
		return nil, fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}

	record, err := decodeVerificationRecord(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > record.ExpiresAt {
		return nil, errVerificationNotFound
	}

	return record, nil
}

// Consume describes the consume operation and its observable behavior.
//
// Consume may return an error when input validation, dependency calls, or security checks fail.
// Consume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *verificationStore) Consume(ctx context.Context, tokenHash [32]byte, now time.Time) (*verificationRecord, error) {
	const maxRetries = 4
	key := s.tokenKey(tokenHash)

	for i := 0; i < maxRetries; i++ {
		var matched *verificationRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeVerificationRecord(data)
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
				return errVerificationNotFound
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
			case errors.Is(err, redis.Nil), errors.Is(err, errVerificationNotFound):
				return nil, errVerificationNotFound
			default:
				return nil, fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errVerificationNotFound
}

func encodeVerificationRecord(record *verificationRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(verificationRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 || len(record.Address) > 65535 {
		return nil, errors.New("verification record field too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Address))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Address)

	return buf.Bytes(), nil
}

func decodeVerificationRecord(data []byte) (*verificationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != verificationRecordVersionV1 {
		return nil, errors.New("invalid verification record version")
	}

	record := &verificationRecord{}

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

	var addressLen uint16
	if err := binary.Read(reader, binary.BigEndian, &addressLen); err != nil {
		return nil, err
	}
	address := make([]byte, addressLen)
	if _, err := io.ReadFull(reader, address); err != nil {
		return nil, err
	}
	record.Address = string(address)

	return record, nil
}
