package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/pkg/events"
	pktNats "hq-billing-be/pkg/nats"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	UsageEventSubject = "events." + events.TypeUsageRecorded
	usageDurableName  = "billing-usage-worker"
)

// UsageEventService records usage that product services report over NATS
// instead of the HTTP API.
type UsageEventService struct {
	subscriber *pktNats.Subscriber
	usage      IUsageService
	logger     logger.ILogger
}

func NewUsageEventService(sub *pktNats.Subscriber, usage IUsageService, log logger.ILogger) *UsageEventService {
	return &UsageEventService{
		subscriber: sub,
		usage:      usage,
		logger:     log,
	}
}

// Start registers the durable consumer. It returns once the subscription is
// in place; messages are handled on the NATS client's goroutines.
func (s *UsageEventService) Start() error {
	if s.subscriber == nil {
		return errors.New("nats subscriber is not connected")
	}
	if err := s.subscriber.Subscribe(UsageEventSubject, usageDurableName, s.HandleEvent); err != nil {
		s.logger.Error("USAGE", "Failed to start usage subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("USAGE", "Usage subscriber started", map[string]interface{}{"subject": UsageEventSubject})
	return nil
}

// HandleEvent tracks one reported measurement. Malformed or invalid events
// are dropped; storage failures are returned so NATS redelivers.
func (s *UsageEventService) HandleEvent(ctx context.Context, event events.Event) error {
	tenantId, req, err := parseUsageEvent(event.Payload())
	if err != nil {
		s.logger.Warn("USAGE", "Dropping malformed usage event", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	if _, err := s.usage.TrackUsage(ctx, tenantId, req); err != nil {
		if apperror.KindOf(err) == apperror.KindValidation {
			s.logger.Warn("USAGE", "Dropping invalid usage event", map[string]interface{}{
				"tenant_id": tenantId.String(),
				"metric":    req.MetricName,
				"error":     err.Error(),
			})
			return nil
		}
		return err
	}
	return nil
}

func parseUsageEvent(payload map[string]interface{}) (uuid.UUID, *dto.TrackUsageRequest, error) {
	rawTenant, _ := payload["tenant_id"].(string)
	tenantId, err := uuid.Parse(rawTenant)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("tenant_id: %w", err)
	}

	metric, _ := payload["metric_name"].(string)
	if metric == "" {
		return uuid.Nil, nil, errors.New("metric_name is missing")
	}

	value, err := decimalField(payload["value"])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("value: %w", err)
	}

	req := &dto.TrackUsageRequest{
		MetricName: metric,
		Value:      value,
	}
	if billable, ok := payload["is_billable_overage"].(bool); ok {
		req.IsBillableOverage = billable
	}
	if meta, ok := payload["metadata"].(map[string]interface{}); ok {
		req.Metadata = meta
	}
	if req.PeriodStart, err = timeField(payload["period_start"]); err != nil {
		return uuid.Nil, nil, fmt.Errorf("period_start: %w", err)
	}
	if req.PeriodEnd, err = timeField(payload["period_end"]); err != nil {
		return uuid.Nil, nil, fmt.Errorf("period_end: %w", err)
	}
	return tenantId, req, nil
}

// JSON numbers arrive as float64; producers that care about precision send
// strings.
func decimalField(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case string:
		return decimal.NewFromString(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	case nil:
		return decimal.Zero, errors.New("missing")
	}
	return decimal.Zero, fmt.Errorf("unsupported type %T", v)
}

func timeField(v interface{}) (*time.Time, error) {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
