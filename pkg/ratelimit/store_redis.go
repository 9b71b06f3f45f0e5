package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed record_if_under_limit.lua
var recordIfUnderLimitScript string

// RedisEventStore implements AtomicEventStore on a Redis sorted set per key.
//
// Every admission event is one sorted-set member scored by its timestamp in
// integer microseconds, so window queries are native ordered range queries
// (ZCOUNT / ZRANGEBYSCORE) scoped exactly to the trailing window; no key
// scanning and no timestamp-prefix heuristics. Every write trims members
// older than the retention and refreshes the key TTL, so individual events
// expire even on continuously active keys while idle keys drop out whole.
//
// The atomic primitive runs as a server-side Lua script: count every window,
// admit only when all are under limit, ZADD in the same evaluation. Redis
// executes scripts atomically, which closes the check-then-record race across
// all processes sharing the store.
//
// Microsecond score resolution disambiguates rapid requests while staying
// exactly representable in the float64 scores Redis uses.
type RedisEventStore struct {
	client redis.UniversalClient
	script *redis.Script
}

// NewRedisEventStore creates a Redis-backed event store and verifies the
// connection with a ping.
func NewRedisEventStore(ctx context.Context, client redis.UniversalClient) (*RedisEventStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &StoreUnavailableError{Op: "ping", Err: err}
	}

	return &RedisEventStore{
		client: client,
		script: redis.NewScript(recordIfUnderLimitScript),
	}, nil
}

// eventScore renders a timestamp as the integer-microsecond score string.
func eventScore(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMicro(), 10)
}

// exclusiveMin renders the "(score" exclusive lower bound for a window start,
// so only events strictly newer than since qualify.
func exclusiveMin(since time.Time) string {
	return "(" + strconv.FormatInt(since.UnixMicro(), 10)
}

// eventMember builds a unique sorted-set member for one event. The timestamp
// alone is not unique across concurrent writers, so a random suffix keeps
// simultaneous events from collapsing into one member.
func eventMember(ts time.Time) string {
	return strconv.FormatInt(ts.UnixNano(), 10) + ":" + uuid.NewString()
}

// RecordEvent stores one event and refreshes the key TTL, pipelined into a
// single round trip. Events older than the retention ttl are trimmed on the
// same write: the key TTL alone never fires for a continuously active key,
// so per-event expiry has to happen here.
func (s *RedisEventStore) RecordEvent(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	score, err := strconv.ParseFloat(eventScore(ts), 64)
	if err != nil {
		return fmt.Errorf("invalid event timestamp %v: %w", ts, err)
	}

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", eventScore(ts.Add(-ttl)))
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: eventMember(ts)})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return &StoreUnavailableError{Op: "record_event", Err: err}
	}
	return nil
}

// CountEvents counts events strictly newer than since and fetches the
// earliest qualifying one, in a single MULTI/EXEC round trip so both reads
// see the same snapshot of the set.
func (s *RedisEventStore) CountEvents(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	min := exclusiveMin(since)

	pipe := s.client.TxPipeline()
	countCmd := pipe.ZCount(ctx, key, min, "+inf")
	oldestCmd := pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:    min,
		Max:    "+inf",
		Offset: 0,
		Count:  1,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, &StoreUnavailableError{Op: "count_events", Err: err}
	}

	count := int(countCmd.Val())
	if count == 0 {
		return 0, time.Time{}, nil
	}

	members := oldestCmd.Val()
	if len(members) == 0 {
		// Both commands run in one transaction, so a positive count with no
		// members should not happen; guard against it anyway.
		return count, time.Time{}, nil
	}
	return count, scoreToTime(members[0].Score), nil
}

// RecordIfUnderLimit runs the embedded Lua script: counts every window,
// admits only when all are under limit, and records atomically.
func (s *RedisEventStore) RecordIfUnderLimit(ctx context.Context, key string, ts time.Time, checks []WindowCheck, ttl time.Duration) (bool, []WindowUsage, error) {
	argv := make([]interface{}, 0, 4+len(checks)*2)
	argv = append(argv,
		eventScore(ts),
		strconv.FormatInt(ttl.Milliseconds(), 10),
		eventMember(ts),
		strconv.Itoa(len(checks)),
	)
	for _, check := range checks {
		argv = append(argv, exclusiveMin(ts.Add(-check.Window)), strconv.Itoa(check.Limit))
	}

	raw, err := s.script.Run(ctx, s.client, []string{key}, argv...).Result()
	if err != nil {
		return false, nil, &StoreUnavailableError{Op: "record_if_under_limit", Err: err}
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 1+len(checks)*2 {
		return false, nil, &StoreUnavailableError{
			Op:  "record_if_under_limit",
			Err: fmt.Errorf("unexpected script reply %T of length %d", raw, len(reply)),
		}
	}

	allowed, err := replyInt(reply[0])
	if err != nil {
		return false, nil, &StoreUnavailableError{Op: "record_if_under_limit", Err: err}
	}

	usages := make([]WindowUsage, len(checks))
	for i := range checks {
		count, err := replyInt(reply[1+i*2])
		if err != nil {
			return false, nil, &StoreUnavailableError{Op: "record_if_under_limit", Err: err}
		}

		var oldest time.Time
		if str, _ := reply[2+i*2].(string); str != "" {
			score, err := strconv.ParseFloat(str, 64)
			if err != nil {
				return false, nil, &StoreUnavailableError{
					Op:  "record_if_under_limit",
					Err: fmt.Errorf("bad oldest score %q: %w", str, err),
				}
			}
			oldest = scoreToTime(score)
		}

		usages[i] = WindowUsage{Count: int(count), Oldest: oldest}
	}

	return allowed == 1, usages, nil
}

// scoreToTime converts an integer-microsecond score back to a time.Time.
func scoreToTime(score float64) time.Time {
	return time.UnixMicro(int64(score))
}

// replyInt extracts an integer from a Lua script reply element.
func replyInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected script reply element %T", v)
	}
}
