// Package coordination wraps the external Coordination Store spec.md
// §2/§4.3 names: the thing the Conversation Service takes a
// distributed lock against before accepting a pending conversation,
// and the thing the Event Bus mirrors Pub/Sub traffic through across
// server instances. No repo in the retrieval pack talks to Redis, so
// this is an out-of-pack dependency (github.com/redis/go-redis/v9,
// see DESIGN.md). Connect takes the COORD_URL DSN as an argument and
// parses it with redis.ParseURL.
package coordination

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
}

func Connect(dsn string) (*Store, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("coordination: invalid COORD_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return &Store{client: client}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Lock is a held distributed lock: an owner token plus the key it was
// acquired against, passed back into Unlock so a lock can only be
// released by whoever holds it.
type Lock struct {
	Key   string
	Owner string
}

// NewOwnerToken generates a random per-acquisition token so two
// concurrent TryLock callers racing for the same key never confuse
// each other's lock, even if they share a process.
func NewOwnerToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// TryLock implements spec.md §4.3's "acquire an external lock" step:
// SET key owner PX ttl NX. Returns ok=false (no error) when the lock
// is already held by someone else, which the Conversation Service
// treats as "someone else is accepting this conversation."
func (s *Store) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	owner := NewOwnerToken()
	ok, err := s.client.SetNX(ctx, lockKey(key), owner, ttl).Result()
	if err != nil {
		return Lock{}, false, fmt.Errorf("coordination: trylock %s: %w", key, err)
	}
	if !ok {
		return Lock{}, false, nil
	}
	return Lock{Key: key, Owner: owner}, true, nil
}

// unlockScript deletes the key only if it still holds our owner token,
// so a lock past its TTL that was re-acquired by someone else is never
// stolen back out from under them.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (s *Store) Unlock(ctx context.Context, lock Lock) error {
	_, err := unlockScript.Run(ctx, s.client, []string{lockKey(lock.Key)}, lock.Owner).Result()
	if err != nil {
		return fmt.Errorf("coordination: unlock %s: %w", lock.Key, err)
	}
	return nil
}

func lockKey(key string) string {
	return "lock:" + key
}

// SetSession stores an agent's socket session blob (the Socket
// Gateway writes agent id, status and a timestamp) with a TTL the
// Socket Gateway refreshes on every heartbeat.
func (s *Store) SetSession(ctx context.Context, agentID string, blob []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(agentID), blob, ttl).Err(); err != nil {
		return fmt.Errorf("coordination: set session %s: %w", agentID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, agentID string) ([]byte, error) {
	v, err := s.client.Get(ctx, sessionKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("coordination: get session %s: %w", agentID, err)
	}
	return v, nil
}

func (s *Store) DeleteSession(ctx context.Context, agentID string) error {
	if err := s.client.Del(ctx, sessionKey(agentID)).Err(); err != nil {
		return fmt.Errorf("coordination: delete session %s: %w", agentID, err)
	}
	return nil
}

func sessionKey(agentID string) string {
	return "session:" + agentID
}

// Publish backs the Event Bus's cross-instance fan-out
// (eventbus/redis.go): every Mirror.Publish goes through here so an
// agent connected to a different server instance still sees it.
// Mirror.Run subscribes by pattern through Client rather than through
// Subscribe.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("coordination: publish %s: %w", channel, err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.client.Subscribe(ctx, channels...)
}

// Client exposes the underlying redis client for callers (asynq's
// RedisClientOpt, in main.go) that need to share the same broker
// connection details rather than go through Store's API.
func (s *Store) Client() *redis.Client {
	return s.client
}
