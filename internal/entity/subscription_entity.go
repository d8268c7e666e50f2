package entity

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Reactivation is the only way out of cancelled.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrial:     {SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCancelled},
	SubscriptionStatusActive:    {SubscriptionStatusPastDue, SubscriptionStatusCancelled},
	SubscriptionStatusPastDue:   {SubscriptionStatusActive, SubscriptionStatusCancelled},
	SubscriptionStatusCancelled: {SubscriptionStatusActive},
}

// OpenSubscriptionStatuses are the statuses that count as a tenant's current subscription.
var OpenSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusTrial,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
}

type Subscription struct {
	Id                 uuid.UUID
	TenantId           uuid.UUID
	PlanId             uuid.UUID
	Status             SubscriptionStatus
	TrialEndsAt        *time.Time
	StartedAt          time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CancelledAt        *time.Time
	CancellationReason string
	PendingPlanId      *uuid.UUID
	PlanChangeDate     *time.Time
	PaymentMethodId    *uuid.UUID
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Subscription) CanTransitionTo(next SubscriptionStatus) error {
	return checkTransition("subscription", subscriptionTransitions, s.Status, next)
}

func (s *Subscription) TransitionTo(next SubscriptionStatus) error {
	if err := s.CanTransitionTo(next); err != nil {
		return err
	}
	s.Status = next
	return nil
}

func (s *Subscription) IsOpen() bool {
	for _, st := range OpenSubscriptionStatuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// HasPendingPlanChange reports a deferred downgrade that is due at the given time.
func (s *Subscription) HasPendingPlanChange(at time.Time) bool {
	return s.PendingPlanId != nil && s.PlanChangeDate != nil && !s.PlanChangeDate.After(at)
}

func (s *Subscription) ClearPendingPlanChange() {
	s.PendingPlanId = nil
	s.PlanChangeDate = nil
}
