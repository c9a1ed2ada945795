package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"mediguard-agents/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// maxUpdateAttempts bounds optimistic retries of Update under contention.
const maxUpdateAttempts = 16

// RedisStore shares session contexts between agent replicas. Each context
// is one JSON value whose TTL is refreshed on every write.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "filechat:session:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Context, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewSessionStoreError("get", err)
	}

	var sc Context
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, false, errors.NewSessionStoreError("decode", err)
	}
	return &sc, true, nil
}

func (s *RedisStore) Put(ctx context.Context, sc *Context) error {
	if sc == nil || sc.SessionID == "" {
		return errors.NewSessionStoreError("put", errors.NewValidationError("session_id", "session id is empty"))
	}
	stored := sc.clone()
	stored.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(stored)
	if err != nil {
		return errors.NewSessionStoreError("encode", err)
	}
	if err := s.client.Set(ctx, s.key(sc.SessionID), data, s.ttl).Err(); err != nil {
		return errors.NewSessionStoreError("put", err)
	}
	return nil
}

// Update watches the key and writes the modified context in a MULTI/EXEC
// transaction, retrying when another writer changed it in between.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Context)) (bool, error) {
	key := s.key(id)
	var found bool

	txf := func(tx *redis.Tx) error {
		found = false
		raw, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var sc Context
		if err := json.Unmarshal(raw, &sc); err != nil {
			return errors.NewSessionStoreError("decode", err)
		}
		fn(&sc)
		sc.SessionID = id
		sc.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&sc)
		if err != nil {
			return errors.NewSessionStoreError("encode", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		found = err == nil
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return found, nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.HasCode(err, errors.ErrCodeSessionStoreFailed) {
			return false, err
		}
		return false, errors.NewSessionStoreError("update", err)
	}
	return false, errors.NewSessionStoreError("update", redis.TxFailedErr)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.NewSessionStoreError("delete", err)
	}
	return nil
}
