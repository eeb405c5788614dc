package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/physiopulse/internal/domain/model"
)

const backendRedis = "redis"

// RedisStore keeps each record as a JSON string and orders them with sorted
// sets scored by creation time:
//
//	<prefix>:analysis:<id>              record
//	<prefix>:analyses                   every id
//	<prefix>:patient:<patient>:analyses ids of one patient
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	o := newOptions(opts)
	return &RedisStore{client: client, prefix: o.keyPrefix}
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(ctx context.Context, addr string, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, opts...), nil
}

func (r *RedisStore) analysisKey(id string) string {
	return fmt.Sprintf("%s:analysis:%s", r.prefix, id)
}

func (r *RedisStore) indexKey(filter model.Filter) string {
	if filter.PatientID != "" {
		return fmt.Sprintf("%s:patient:%s:analyses", r.prefix, filter.PatientID)
	}
	return r.prefix + ":analyses"
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, a model.Analysis) (err error) { //nolint:gocritic // hugeParam: records travel by value
	defer func() { observe(backendRedis, "save", err) }()
	if err := checkSave(&a); err != nil {
		return err
	}

	old, err := r.get(ctx, a.ID)
	switch {
	case err == nil:
		a.CreatedAt = old.CreatedAt
	case !errors.Is(err, ErrNotFound):
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	member := redis.Z{Score: float64(a.CreatedAt.UnixMicro()), Member: a.ID}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.analysisKey(a.ID), data, 0)
		pipe.ZAdd(ctx, r.indexKey(model.Filter{}), member)
		if a.PatientID != "" {
			pipe.ZAdd(ctx, r.indexKey(model.Filter{PatientID: a.PatientID}), member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", a.ID, err)
	}
	return nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (a model.Analysis, err error) {
	defer func() { observe(backendRedis, "get", err) }()
	return r.get(ctx, id)
}

func (r *RedisStore) get(ctx context.Context, id string) (model.Analysis, error) {
	data, err := r.client.Get(ctx, r.analysisKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Analysis{}, ErrNotFound
	}
	if err != nil {
		return model.Analysis{}, fmt.Errorf("failed to get analysis: %w", err)
	}
	var a model.Analysis
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return model.Analysis{}, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return a, nil
}

// List implements Store.
func (r *RedisStore) List(ctx context.Context, filter model.Filter, limit, offset int) (out []model.Analysis, err error) {
	defer func() { observe(backendRedis, "list", err) }()
	if err := checkPage(limit, offset); err != nil {
		return nil, err
	}

	ids, err := r.client.ZRevRange(ctx, r.indexKey(filter), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	out = make([]model.Analysis, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.analysisKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load analyses: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Index entry without a record; skip it.
			continue
		}
		var a model.Analysis
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis %s: %w", ids[i], err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Count implements Store.
func (r *RedisStore) Count(ctx context.Context, filter model.Filter) (n int, err error) {
	defer func() { observe(backendRedis, "count", err) }()

	c, err := r.client.ZCard(ctx, r.indexKey(filter)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return int(c), nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
