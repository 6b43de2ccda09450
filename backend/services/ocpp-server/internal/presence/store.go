// Package presence publishes which stations hold a live session on this node, so other
// processes can tell where a station is connected.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

// Entry is the presence record of one station.
type Entry struct {
	StationID   string    `json:"stationId"`
	Token       string    `json:"token"`
	Node        string    `json:"node"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// removeIfOwner deletes the key only while it still belongs to the given session token.
var removeIfOwner = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store manages station presence in redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	node   string
	now    func() time.Time
}

// NewStore returns redis-backed store. Entries expire after ttl unless refreshed.
func NewStore(client *redis.Client, ttl time.Duration, node string) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl, node: node, now: time.Now}
}

func (s *Store) key(stationID string) string {
	return fmt.Sprintf("ocpp:presence:%s", stationID)
}

// Publish records that token now owns stationID.
func (s *Store) Publish(ctx context.Context, stationID, token string) error {
	key := s.key(stationID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"token", token,
			"node", s.node,
			"connected_at", strconv.FormatInt(s.now().UTC().UnixMilli(), 10),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Touch extends the entry's lifetime.
func (s *Store) Touch(ctx context.Context, stationID string) error {
	return s.client.Expire(ctx, s.key(stationID), s.ttl).Err()
}

// Remove deletes the entry if token still owns it.
func (s *Store) Remove(ctx context.Context, stationID, token string) error {
	return removeIfOwner.Run(ctx, s.client, []string{s.key(stationID)}, token).Err()
}

// Get returns the entry of stationID.
func (s *Store) Get(ctx context.Context, stationID string) (*Entry, error) {
	values, err := s.client.HGetAll(ctx, s.key(stationID)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, redis.Nil
	}
	entry := &Entry{StationID: stationID, Token: values["token"], Node: values["node"]}
	if ms, err := strconv.ParseInt(values["connected_at"], 10, 64); err == nil {
		entry.ConnectedAt = time.UnixMilli(ms).UTC()
	}
	return entry, nil
}

// IsNotFound reports whether err means the station has no presence entry.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
