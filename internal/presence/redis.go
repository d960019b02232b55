package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
)

// Redis shares presence between processes. Per channel it keeps a hash
// of connection -> user and a hash of user -> open connection count; a
// single sorted set scores every connection by its last heartbeat.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	clock     clock.Clock
}

func NewRedis(client *redis.Client, keyPrefix string, c clock.Clock) *Redis {
	if client == nil {
		panic("redis client cannot be nil for presence tracker")
	}
	if keyPrefix == "" {
		keyPrefix = "og:"
	}
	if c == nil {
		c = clock.Real()
	}
	return &Redis{client: client, keyPrefix: keyPrefix, clock: c}
}

func (r *Redis) connsKey(channel domain.Channel) string {
	return fmt.Sprintf("%spresence:%s:conns", r.keyPrefix, channel)
}

func (r *Redis) usersKey(channel domain.Channel) string {
	return fmt.Sprintf("%spresence:%s:users", r.keyPrefix, channel)
}

func (r *Redis) connKey(connID string) string {
	return fmt.Sprintf("%spresence:conn:%s", r.keyPrefix, connID)
}

func (r *Redis) seenKey() string {
	return r.keyPrefix + "presence:seen"
}

// seen members are "<channel>|<connID>"; channel strings never hold '|'.
func seenMember(channel domain.Channel, connID string) string {
	return channel.String() + "|" + connID
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (r *Redis) Join(ctx context.Context, channel domain.Channel, connID string, userID uuid.UUID) (bool, error) {
	added, err := r.client.HSetNX(ctx, r.connsKey(channel), connID, userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to register connection %s in %s: %w", connID, channel, err)
	}
	if !added {
		return false, r.Heartbeat(ctx, connID)
	}

	var count *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.HIncrBy(ctx, r.usersKey(channel), userID.String(), 1)
		pipe.Set(ctx, r.connKey(connID), channel.String(), 0)
		pipe.ZAdd(ctx, r.seenKey(), &redis.Z{Score: score(r.clock.Now()), Member: seenMember(channel, connID)})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis: failed to join %s: %w", channel, err)
	}
	return count.Val() == 1, nil
}

func (r *Redis) Leave(ctx context.Context, channel domain.Channel, connID string) (bool, error) {
	user, err := r.client.HGet(ctx, r.connsKey(channel), connID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: failed to look up connection %s: %w", connID, err)
	}

	// Only the caller that removes the connection field decrements.
	removed, err := r.client.HDel(ctx, r.connsKey(channel), connID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to remove connection %s: %w", connID, err)
	}
	if removed == 0 {
		return false, nil
	}

	var count *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.HIncrBy(ctx, r.usersKey(channel), user, -1)
		pipe.Del(ctx, r.connKey(connID))
		pipe.ZRem(ctx, r.seenKey(), seenMember(channel, connID))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis: failed to leave %s: %w", channel, err)
	}
	if count.Val() > 0 {
		return false, nil
	}

	r.dropZeroCounter(ctx, channel, user)
	return true, nil
}

// dropZeroCounter removes a user counter that is still zero. Readers
// ignore zero counters, so losing the race to a concurrent join is fine.
func (r *Redis) dropZeroCounter(ctx context.Context, channel domain.Channel, user string) {
	key := r.usersKey(channel)
	_ = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.HGet(ctx, key, user).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, user)
			return nil
		})
		return err
	}, key)
}

func (r *Redis) Count(ctx context.Context, channel domain.Channel) (int, error) {
	counts, err := r.client.HGetAll(ctx, r.usersKey(channel)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to count %s: %w", channel, err)
	}
	n := 0
	for _, raw := range counts {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			n++
		}
	}
	return n, nil
}

func (r *Redis) Users(ctx context.Context, channel domain.Channel) ([]uuid.UUID, error) {
	counts, err := r.client.HGetAll(ctx, r.usersKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list users of %s: %w", channel, err)
	}
	users := make([]uuid.UUID, 0, len(counts))
	for raw, n := range counts {
		if v, err := strconv.Atoi(n); err != nil || v <= 0 {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users, nil
}

func (r *Redis) Heartbeat(ctx context.Context, connID string) error {
	raw, err := r.client.Get(ctx, r.connKey(connID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis: failed to look up connection %s: %w", connID, err)
	}
	channel, err := domain.ParseChannel(raw)
	if err != nil {
		return err
	}
	err = r.client.ZAdd(ctx, r.seenKey(), &redis.Z{Score: score(r.clock.Now()), Member: seenMember(channel, connID)}).Err()
	if err != nil {
		return fmt.Errorf("redis: failed to refresh connection %s: %w", connID, err)
	}
	return nil
}

func (r *Redis) Prune(ctx context.Context, cutoff time.Time) ([]domain.Channel, error) {
	stale, err := r.client.ZRangeByScore(ctx, r.seenKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(cutoff), 'f', 0, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to read stale connections: %w", err)
	}

	changed := make(map[domain.Channel]struct{})
	for _, member := range stale {
		raw, connID, ok := strings.Cut(member, "|")
		if !ok {
			r.client.ZRem(ctx, r.seenKey(), member)
			continue
		}
		channel, err := domain.ParseChannel(raw)
		if err != nil {
			r.client.ZRem(ctx, r.seenKey(), member)
			continue
		}
		left, err := r.Leave(ctx, channel, connID)
		if err != nil {
			return sortedChannels(changed), err
		}
		// Leave skips the sorted set when the hash entry is already gone.
		r.client.ZRem(ctx, r.seenKey(), member)
		if left {
			changed[channel] = struct{}{}
		}
	}
	return sortedChannels(changed), nil
}
