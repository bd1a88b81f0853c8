package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for all presence hashes.
	KeyPrefix = "presence:"

	// RecordTTL is the time-to-live for presence keys in Redis. The heartbeat
	// refreshes it while the connection is alive.
	RecordTTL = 1 * time.Hour
)

// Record represents one live socket connection as stored in Redis.
type Record struct {
	ConnID      string `redis:"conn_id"`
	UserID      string `redis:"user_id"` // empty until the client joins
	Server      string `redis:"server"`  // which delivery server instance
	ConnectedAt int64  `redis:"connected_at"`
	JoinedAt    int64  `redis:"joined_at"` // 0 until the client joins
}

// Store manages presence records in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this delivery server instance
}

// NewStore creates a presence store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Track stores a new anonymous presence record with a 1h TTL.
func (s *Store) Track(ctx context.Context, connID string) error {
	key := KeyPrefix + connID

	record := map[string]interface{}{
		"conn_id":      connID,
		"user_id":      "",
		"server":       s.serverName,
		"connected_at": time.Now().Unix(),
		"joined_at":    0,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, record)
	pipe.Expire(ctx, key, RecordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Bind records the recipient identity the connection joined as and refreshes
// the TTL.
func (s *Store) Bind(ctx context.Context, connID string, userID string) error {
	key := KeyPrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "user_id", userID, "joined_at", time.Now().Unix())
	pipe.Expire(ctx, key, RecordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a presence record. Returns nil if not found.
func (s *Store) Get(ctx context.Context, connID string) (*Record, error) {
	key := KeyPrefix + connID
	var record Record
	err := s.client.HGetAll(ctx, key).Scan(&record)
	if err != nil {
		return nil, err
	}
	if record.ConnID == "" {
		return nil, nil // not found
	}
	return &record, nil
}

// Refresh extends the record's TTL.
func (s *Store) Refresh(ctx context.Context, connID string) error {
	return s.client.Expire(ctx, KeyPrefix+connID, RecordTTL).Err()
}

// Delete removes a presence record.
func (s *Store) Delete(ctx context.Context, connID string) error {
	return s.client.Del(ctx, KeyPrefix+connID).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
