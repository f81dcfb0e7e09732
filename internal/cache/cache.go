package cache

import (
	"context"
	"time"

	"buildsmart/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DailyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DailyReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailyReport, _ time.Duration) error {
	return nil
}
