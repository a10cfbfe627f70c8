package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisRoomPrefix = "schedy:room:"

// RedisStore persists room records in Redis. Useful when several
// deployments share a Redis instance or the host has no writable disk.
type RedisStore struct {
	client *redis.Client
}

// OpenRedisStore connects to the Redis instance given by addr, e.g.
// "localhost:6379" or a redis:// URL.
func OpenRedisStore(addr string) (*RedisStore, error) {
	var opts *redis.Options
	if u, err := redis.ParseURL(addr); err == nil {
		opts = u
	} else {
		opts = &redis.Options{Addr: addr}
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) GetRoom(ctx context.Context, room string) (*RoomRecord, error) {
	raw, err := s.client.Get(ctx, redisRoomPrefix+room).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", room, err)
	}
	var rec RoomRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode room record %s: %w", room, err)
	}
	return &rec, nil
}

func (s *RedisStore) PutRoom(ctx context.Context, rec *RoomRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisRoomPrefix+rec.Room, buf, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", rec.Room, err)
	}
	return nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, room string) error {
	if err := s.client.Del(ctx, redisRoomPrefix+room).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", room, err)
	}
	return nil
}

func (s *RedisStore) ListRooms(ctx context.Context) ([]*RoomRecord, error) {
	var list []*RoomRecord
	iter := s.client.Scan(ctx, 0, redisRoomPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var rec RoomRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		list = append(list, &rec)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }

var _ Store = (*RedisStore)(nil)
