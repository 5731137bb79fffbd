package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis so in-flight bookings survive a rolling
// restart of a multi-instance deployment. The TTL evicts abandoned sessions;
// it never touches durable appointments.
//
// Per-user serialization is process-local: the service routes all of one
// user's conversation through one instance, so a keyed mutex is enough.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		prefix: "session:",
		locks:  map[int64]*sync.Mutex{},
	}
}

func (r *RedisStore) key(userID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, userID)
}

func (r *RedisStore) userLock(userID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.locks[userID]
	if l == nil {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

func (r *RedisStore) load(ctx context.Context, userID int64) (Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{UserID: userID, State: StateIdle}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// A corrupt session is recoverable: start the flow over.
		return Session{UserID: userID, State: StateIdle}, nil
	}
	return s, nil
}

func (r *RedisStore) Update(ctx context.Context, userID int64, fn func(*Session) error) error {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s, err := r.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(&s); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (Session, error) {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return r.load(ctx, userID)
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()
	if err := r.rdb.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
