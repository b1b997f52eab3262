package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Redis keeps the message ids of a room in a lexicographically
// ordered set, message bodies and the room metadata in hashes,
// all expiring after ttl.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisClient(client, ttl), nil
}

func NewRedisClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func roomKey(code string) string         { return fmt.Sprintf("room:%s:meta", code) }
func roomMessagesKey(code string) string { return fmt.Sprintf("room:%s:messages", code) }
func roomBodiesKey(code string) string   { return fmt.Sprintf("room:%s:bodies", code) }

func (s *Redis) SaveRoom(ctx context.Context, room Room) error {
	key := roomKey(room.Code)
	fields := map[string]any{
		"host_id":    room.HostId,
		"title":      room.Title,
		"created_at": room.CreatedAt.UnixMilli(),
	}
	if !room.ClosedAt.IsZero() {
		fields["closed_at"] = room.ClosedAt.UnixMilli()
		fields["close_reason"] = room.CloseReason
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Redis) AddMessage(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ids, bodies := roomMessagesKey(msg.Room), roomBodiesKey(msg.Room)
	pipe := s.client.TxPipeline()
	// equal scores make the set ordered by member, ULIDs sort by time
	pipe.ZAdd(ctx, ids, redis.Z{Score: 0, Member: msg.Id})
	pipe.HSet(ctx, bodies, msg.Id, data)
	pipe.Expire(ctx, ids, s.ttl)
	pipe.Expire(ctx, bodies, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Redis) Messages(ctx context.Context, room string, limit int, beforeId string) ([]Message, error) {
	upper := "+"
	if beforeId != "" {
		upper = "(" + beforeId
	}
	ids, err := s.client.ZRevRangeByLex(ctx, roomMessagesKey(room), &redis.ZRangeBy{
		Min:   "-",
		Max:   upper,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Message{}, nil
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	bodies, err := s.client.HMGet(ctx, roomBodiesKey(room), ids...).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(bodies))
	for _, body := range bodies {
		data, ok := body.(string)
		if !ok {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *Redis) Close() error { return s.client.Close() }
