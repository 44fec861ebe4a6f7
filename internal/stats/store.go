package stats

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	metricsTTL   = 7 * 24 * time.Hour
	MaxHours     = 7 * 24
	DefaultHours = 24
)

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

// Increment adds the given field deltas to the customer's bucket for the hour
// containing at.
func (s *Store) Increment(ctx context.Context, customerID int64, at time.Time, fields map[string]int64) error {
	if len(fields) == 0 {
		return nil
	}
	key := bucketKey(customerID, at)

	pipe := s.redis.Pipeline()
	for field, v := range fields {
		pipe.HIncrBy(ctx, key, field, v)
	}
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) IncrementMetric(ctx context.Context, customerID int64, field string, value int64) error {
	return s.Increment(ctx, customerID, time.Now(), map[string]int64{field: value})
}

func (s *Store) RecordLatency(ctx context.Context, customerID int64, at time.Time, latencyMs int64) error {
	return s.Increment(ctx, customerID, at, map[string]int64{
		fieldLatencyTotal: latencyMs,
		fieldLatencyCount: 1,
	})
}

// GetMetrics returns the non-empty hourly buckets of the last hours, newest first.
func (s *Store) GetMetrics(ctx context.Context, customerID int64, hours int) ([]*Metrics, error) {
	if hours <= 0 {
		hours = DefaultHours
	}
	if hours > MaxHours {
		hours = MaxHours
	}

	now := time.Now().UTC()
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, hours)
	for i := 0; i < hours; i++ {
		cmds[i] = pipe.HGetAll(ctx, bucketKey(customerID, now.Add(-time.Duration(i)*time.Hour)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	metrics := make([]*Metrics, 0)
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		t := now.Add(-time.Duration(i) * time.Hour)
		m := &Metrics{
			CustomerID:  customerID,
			Date:        t.Format("2006-01-02"),
			Hour:        t.Hour(),
			Calls:       parseField(data, FieldCalls),
			Turns:       parseField(data, FieldTurns),
			Interrupts:  parseField(data, FieldInterrupts),
			FailedTurns: parseField(data, FieldFailedTurns),
			Errors:      parseField(data, FieldErrors),
			TalkMs:      parseField(data, FieldTalkMs),
		}
		if n := parseField(data, fieldLatencyCount); n > 0 {
			m.AvgLatencyMs = parseField(data, fieldLatencyTotal) / n
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func parseField(data map[string]string, field string) int64 {
	v, _ := strconv.ParseInt(data[field], 10, 64)
	return v
}
