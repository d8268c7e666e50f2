package service

import (
	"context"
	"errors"
	"testing"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsage struct {
	IUsageService
	err     error
	tracked []*dto.TrackUsageRequest
}

func (s *stubUsage) TrackUsage(_ context.Context, _ uuid.UUID, req *dto.TrackUsageRequest) (*dto.UsageMetricResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tracked = append(s.tracked, req)
	return &dto.UsageMetricResponse{MetricName: req.MetricName, MetricValue: req.Value}, nil
}

func TestParseUsageEvent(t *testing.T) {
	tenant := uuid.New()

	t.Run("string values keep their precision", func(t *testing.T) {
		id, req, err := parseUsageEvent(map[string]interface{}{
			"tenant_id":           tenant.String(),
			"metric_name":         "storage_gb",
			"value":               "0.125",
			"is_billable_overage": true,
			"period_start":        "2025-03-01T00:00:00Z",
			"metadata":            map[string]interface{}{"region": "eu"},
		})
		require.NoError(t, err)
		assert.Equal(t, tenant, id)
		assert.Equal(t, "0.125", req.Value.String())
		assert.True(t, req.IsBillableOverage)
		require.NotNil(t, req.PeriodStart)
		assert.Equal(t, 2025, req.PeriodStart.Year())
		assert.Nil(t, req.PeriodEnd)
		assert.Equal(t, "eu", req.Metadata["region"])
	})

	t.Run("numbers are accepted", func(t *testing.T) {
		_, req, err := parseUsageEvent(map[string]interface{}{
			"tenant_id":   tenant.String(),
			"metric_name": "api_calls",
			"value":       float64(42),
		})
		require.NoError(t, err)
		assert.Equal(t, "42", req.Value.String())
	})

	for name, payload := range map[string]map[string]interface{}{
		"bad tenant":     {"tenant_id": "nope", "metric_name": "api_calls", "value": "1"},
		"missing metric": {"tenant_id": tenant.String(), "value": "1"},
		"missing value":  {"tenant_id": tenant.String(), "metric_name": "api_calls"},
		"bool value":     {"tenant_id": tenant.String(), "metric_name": "api_calls", "value": true},
		"bad period":     {"tenant_id": tenant.String(), "metric_name": "api_calls", "value": "1", "period_end": "yesterday"},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseUsageEvent(payload)
			assert.Error(t, err)
		})
	}
}

func TestUsageEventHandling(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	valid := events.New(events.TypeUsageRecorded, map[string]interface{}{
		"tenant_id":   tenant.String(),
		"metric_name": "api_calls",
		"value":       "3",
	})

	t.Run("valid events are tracked", func(t *testing.T) {
		usage := &stubUsage{}
		svc := NewUsageEventService(nil, usage, logger.NewNopLogger())
		require.NoError(t, svc.HandleEvent(ctx, valid))
		require.Len(t, usage.tracked, 1)
		assert.Equal(t, "api_calls", usage.tracked[0].MetricName)
	})

	t.Run("malformed events are acknowledged", func(t *testing.T) {
		usage := &stubUsage{}
		svc := NewUsageEventService(nil, usage, logger.NewNopLogger())
		err := svc.HandleEvent(ctx, events.New(events.TypeUsageRecorded, map[string]interface{}{"value": "3"}))
		assert.NoError(t, err)
		assert.Empty(t, usage.tracked)
	})

	t.Run("validation failures are acknowledged", func(t *testing.T) {
		usage := &stubUsage{err: apperror.Validation("invalid usage", "value must not be negative")}
		svc := NewUsageEventService(nil, usage, logger.NewNopLogger())
		assert.NoError(t, svc.HandleEvent(ctx, valid))
	})

	t.Run("storage failures are redelivered", func(t *testing.T) {
		usage := &stubUsage{err: errors.New("database is locked")}
		svc := NewUsageEventService(nil, usage, logger.NewNopLogger())
		assert.Error(t, svc.HandleEvent(ctx, valid))
	})

	t.Run("start needs a connection", func(t *testing.T) {
		svc := NewUsageEventService(nil, &stubUsage{}, logger.NewNopLogger())
		assert.Error(t, svc.Start())
	})
}
