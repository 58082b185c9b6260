package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"infra-insight/internal/models"
	"infra-insight/internal/report"

	"github.com/go-redis/redis/v8"
)

const recentKey = "reports:recent"

type Options struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	RecentLimit int64
}

// RedisClient caches recent reports for the HTTP API.
type RedisClient struct {
	client      *redis.Client
	ttl         time.Duration
	recentLimit int64
}

func NewRedisClient(ctx context.Context, opts Options) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 1000
	}
	return &RedisClient{
		client:      client,
		ttl:         opts.TTL,
		recentLimit: opts.RecentLimit,
	}, nil
}

func reportKey(id string) string {
	return fmt.Sprintf("report:%s", id)
}

// StoreReport caches a report and pushes it onto the recent list.
func (r *RedisClient) StoreReport(ctx context.Context, rep *models.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	key := reportKey(rep.ID)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, r.ttl)
	pipe.LPush(ctx, recentKey, key)
	pipe.LTrim(ctx, recentKey, 0, r.recentLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store report in Redis: %w", err)
	}
	return nil
}

// GetReport returns a cached report or report.ErrNotFound.
func (r *RedisClient) GetReport(ctx context.Context, id string) (*models.Report, error) {
	data, err := r.client.Get(ctx, reportKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, report.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}

	var rep models.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return &rep, nil
}

// GetRecentReports returns up to count cached reports, newest first. Entries
// that expired or fail to decode are skipped.
func (r *RedisClient) GetRecentReports(ctx context.Context, count int64) ([]*models.Report, error) {
	keys, err := r.client.LRange(ctx, recentKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent report keys: %w", err)
	}

	reports := make([]*models.Report, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var rep models.Report
		if err := json.Unmarshal(data, &rep); err != nil {
			continue
		}
		reports = append(reports, &rep)
	}
	return reports, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
