// Package redisstore persists daily statistics as Redis hash counters.
package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/viant/triage/model"
	"github.com/viant/triage/service/stats"
)

// Config defines the Redis connection.
type Config struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// NewClient creates a Redis client.
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Store increments per-day hashes: <prefix>:day:<n> for counters and
// <prefix>:day:<n>:departments / :conditions for keyed visit counts.
type Store struct {
	client redis.UniversalClient
	prefix string
	dayOf  stats.DayFunc
}

// New creates a store on an existing client.
func New(client redis.UniversalClient, prefix string, dayOf stats.DayFunc) *Store {
	if prefix == "" {
		prefix = "triage"
	}
	if dayOf == nil {
		dayOf = func(model.Tick) int { return 0 }
	}
	return &Store{client: client, prefix: prefix, dayOf: dayOf}
}

// DayKey returns the counter hash key of a day.
func (s *Store) DayKey(day int) string {
	return s.prefix + ":day:" + strconv.Itoa(day)
}

// Record increments the day counters atomically.
func (s *Store) Record(ctx context.Context, c *model.Case) error {
	if c == nil || !c.Outcome().Terminal() {
		return stats.ErrUnresolved
	}
	delta := stats.Delta(s.dayOf(c.Resolved()), c)
	key := s.DayKey(delta.Day)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, value := range counters(delta) {
			if value != 0 {
				pipe.HIncrBy(ctx, key, field, value)
			}
		}
		if delta.Waiting.Count > 0 {
			pipe.ZAdd(ctx, key+":waiting", &redis.Z{Score: float64(delta.Waiting.Max), Member: c.ID})
		}
		for name, n := range delta.Departments {
			pipe.HIncrBy(ctx, key+":departments", name, int64(n))
		}
		for name, n := range delta.Conditions {
			pipe.HIncrBy(ctx, key+":conditions", name, int64(n))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record case %s: %w", c.ID, err)
	}
	return nil
}

func counters(b stats.Bucket) map[string]int64 {
	return map[string]int64{
		"visits":             int64(b.Visits),
		"alive":              int64(b.Alive),
		"dead":               int64(b.Dead),
		"lost":               int64(b.Lost),
		"ambulance":          int64(b.Ambulance),
		"emergency":          int64(b.Emergency),
		"blood_work":         int64(b.BloodWork),
		"xray":               int64(b.XRay),
		"surgeries":          int64(b.Surgeries),
		"surgery_success":    int64(b.SurgerySuccess),
		"code_blue":          int64(b.CodeBlue),
		"code_blue_survived": int64(b.CodeBlueSurvived),
		"surge_patients":     int64(b.Surge.Patients),
		"surge_alive":        int64(b.Surge.Alive),
		"surge_dead":         int64(b.Surge.Dead),
		"surge_lost":         int64(b.Surge.Lost),
		"wait_total":         int64(b.Waiting.Total),
		"wait_count":         int64(b.Waiting.Count),
	}
}

var _ stats.Sink = (*Store)(nil)
