package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record as a JSON string under its own key and
// indexes workflows by start time in a sorted set scored in Unix milliseconds.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "legitrag"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) stepKey(id string) string { return s.prefix + ":step:" + id }
func (s *RedisStore) workflowKey(id string) string { return s.prefix + ":workflow:" + id }
func (s *RedisStore) indexKey() string { return s.prefix + ":workflows" }

func (s *RedisStore) AppendStep(ctx context.Context, rec StepRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, s.stepKey(rec.StepID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("ledger: redis append step: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: step %s", ErrDuplicateID, rec.StepID)
	}
	return nil
}

func (s *RedisStore) AppendWorkflow(ctx context.Context, rec WorkflowRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, s.workflowKey(rec.WorkflowID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("ledger: redis append workflow: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: workflow %s", ErrDuplicateID, rec.WorkflowID)
	}
	z := redis.Z{Score: float64(rec.StartedAt.UnixMilli()), Member: rec.WorkflowID}
	if err := s.rdb.ZAdd(ctx, s.indexKey(), z).Err(); err != nil {
		return fmt.Errorf("ledger: redis index workflow: %w", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Step(ctx context.Context, id string) (StepRecord, error) {
	data, err := s.get(ctx, s.stepKey(id))
	if err != nil {
		return StepRecord{}, err
	}
	return decode[StepRecord](data)
}

func (s *RedisStore) Workflow(ctx context.Context, id string) (WorkflowRecord, error) {
	data, err := s.get(ctx, s.workflowKey(id))
	if err != nil {
		return WorkflowRecord{}, err
	}
	return decode[WorkflowRecord](data)
}

func (s *RedisStore) Workflows(ctx context.Context, r Range) ([]WorkflowRecord, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !r.From.IsZero() {
		by.Min = strconv.FormatInt(r.From.UnixMilli(), 10)
	}
	if !r.To.IsZero() {
		by.Max = strconv.FormatInt(r.To.UnixMilli(), 10)
	}
	ids, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: redis range: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.workflowKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: redis mget: %w", err)
	}

	out := make([]WorkflowRecord, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: indexed workflow %s", ErrNotFound, ids[i])
		}
		w, err := decode[WorkflowRecord]([]byte(str))
		if err != nil {
			return nil, err
		}
		// The index has millisecond resolution.
		if r.Contains(w.StartedAt) {
			out = append(out, w)
		}
	}
	sortWorkflows(out)
	return out, nil
}
