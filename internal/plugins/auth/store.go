package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// flowKeyPrefix namespaces flow sessions in Redis.
const flowKeyPrefix = "flow:"

// sessionTokenBytes is the size of the random session token before encoding.
const sessionTokenBytes = 32

var (
	// ErrSessionNotFound is returned when a token has no live session.
	ErrSessionNotFound = errors.New("session expired or invalid")

	// ErrSessionConflict is returned when the stored session changed after
	// the caller loaded its copy.
	ErrSessionConflict = errors.New("session modified concurrently")
)

// SessionStore persists FlowSessions keyed by an opaque token.
type SessionStore interface {
	// Create stores a fresh, empty session and returns it.
	Create(ctx context.Context) (*FlowSession, error)

	// Get loads a session, or returns ErrSessionNotFound.
	Get(ctx context.Context, token string) (*FlowSession, error)

	// Save writes the session back, refreshing its TTL. Returns
	// ErrSessionConflict if another writer saved it first.
	Save(ctx context.Context, sess *FlowSession) error

	// Rotate moves the session to a new token and deletes the old key. It
	// fails with ErrSessionConflict under the same rule as Save.
	Rotate(ctx context.Context, sess *FlowSession) error

	// Destroy removes a session. Missing sessions are not an error.
	Destroy(ctx context.Context, token string) error
}

// redisSessionStore keeps sessions as JSON strings. Unauthenticated flows
// expire after flowTTL of inactivity; authenticated sessions after sessionTTL.
type redisSessionStore struct {
	redis      *redis.Client
	flowTTL    time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(rdb *redis.Client, flowTTL, sessionTTL time.Duration) SessionStore {
	return &redisSessionStore{
		redis:      rdb,
		flowTTL:    flowTTL,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// Create generates a token and stores an empty session under it.
func (s *redisSessionStore) Create(ctx context.Context) (*FlowSession, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	sess := &FlowSession{Token: token, CreatedAt: s.now().UTC()}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get reads and decodes a session.
func (s *redisSessionStore) Get(ctx context.Context, token string) (*FlowSession, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	data, err := s.redis.Get(ctx, flowKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var sess FlowSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	sess.Token = token
	return &sess, nil
}

// Save encodes the session and resets its expiry.
func (s *redisSessionStore) Save(ctx context.Context, sess *FlowSession) error {
	key := flowKeyPrefix + sess.Token
	return s.commit(ctx, sess, func(pipe redis.Pipeliner, data []byte) {
		pipe.Set(ctx, key, data, s.ttl(sess))
	})
}

// Rotate issues a new token for the session. The old key is deleted in the
// same transaction so the previous token stops working immediately.
func (s *redisSessionStore) Rotate(ctx context.Context, sess *FlowSession) error {
	token, err := generateSessionToken()
	if err != nil {
		return fmt.Errorf("generating session token: %w", err)
	}

	old := sess.Token
	err = s.commit(ctx, sess, func(pipe redis.Pipeliner, data []byte) {
		pipe.Set(ctx, flowKeyPrefix+token, data, s.ttl(sess))
		if old != "" {
			pipe.Del(ctx, flowKeyPrefix+old)
		}
	})
	if err != nil {
		return err
	}

	sess.Token = token
	return nil
}

// commit runs write inside a WATCH on the session's current key. The stored
// version must still equal sess.Version, otherwise nothing is written and
// ErrSessionConflict is returned. On success sess.Version is advanced.
func (s *redisSessionStore) commit(ctx context.Context, sess *FlowSession, write func(pipe redis.Pipeliner, data []byte)) error {
	key := flowKeyPrefix + sess.Token

	next := *sess
	next.Version++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != sess.Version {
			return ErrSessionConflict
		}

		// EXEC aborts if another client touched the key after the GET.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe, data)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, ErrSessionConflict), errors.Is(err, redis.TxFailedErr):
		return ErrSessionConflict
	case err != nil:
		return fmt.Errorf("storing session in Redis: %w", err)
	}
	sess.Version = next.Version
	return nil
}

// storedVersion reads the version of the session under key. A missing key
// reads as version 0, which only a session that was never saved carries.
func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading session from Redis: %w", err)
	}

	var stored struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return 0, fmt.Errorf("unmarshaling session: %w", err)
	}
	return stored.Version, nil
}

// Destroy deletes the session key.
func (s *redisSessionStore) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.redis.Del(ctx, flowKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("deleting session from Redis: %w", err)
	}
	return nil
}

func (s *redisSessionStore) ttl(sess *FlowSession) time.Duration {
	if sess.IsAuthenticated {
		return s.sessionTTL
	}
	return s.flowTTL
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
