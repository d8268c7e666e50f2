package service

import (
	"context"
	"errors"
	"time"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/locker"
	"hq-billing-be/internal/repository/contract"

	"github.com/google/uuid"
)

var (
	ErrPlanNotFound               = apperror.NotFound("plan not found")
	ErrPlanHasActiveSubscriptions = apperror.InvalidState("plan has active subscriptions")
	ErrSubscriptionNotFound       = apperror.NotFound("subscription not found")
	ErrTenantAlreadySubscribed    = apperror.Conflict("tenant already has an active subscription")
	ErrInvalidSubscriptionState   = apperror.InvalidState("invalid subscription state")
	ErrSubscriptionLocked         = apperror.Conflict("subscription is being modified, retry later")
	ErrBillingCycleNotFound       = apperror.NotFound("billing cycle not found")
	ErrInvoiceNotFound            = apperror.NotFound("invoice not found")
	ErrInvalidInvoiceState        = apperror.InvalidState("invalid invoice state")
	ErrTransactionNotFound        = apperror.NotFound("payment transaction not found")
	ErrInvalidTransactionState    = apperror.InvalidState("invalid payment transaction state")
	ErrPaymentMethodNotFound      = apperror.NotFound("payment method not found")
	ErrPaymentMethodInUse         = apperror.InvalidState("payment method is used by an active subscription")
	ErrInvalidSignature           = apperror.Unauthorized("invalid webhook signature")
	ErrPaymentFailed              = apperror.New(apperror.KindUpstream, "payment failed")
	ErrProviderTimeout            = apperror.Timeout("payment provider timed out")
	ErrUnsupportedProvider        = apperror.Validation("unsupported payment provider")
	ErrUnsupportedCurrency        = apperror.Validation("currency not supported by payment provider")
	ErrInvalidPeriod              = apperror.Validation("invalid period")
)

// stateError turns an entity transition failure into the given sentinel and
// passes every other error through.
func stateError(sentinel *apperror.Error, err error) error {
	var transitionErr *entity.TransitionError
	if errors.As(err, &transitionErr) {
		return sentinel.Wrap(err)
	}
	if errors.Is(err, contract.ErrConcurrentModification) {
		return ErrSubscriptionLocked.Wrap(err)
	}
	return err
}

func subscriptionLockKey(id uuid.UUID) string {
	return "subscription:" + id.String()
}

func tenantLockKey(id uuid.UUID) string {
	return "tenant:" + id.String()
}

// withLock runs fn while holding key. A lock held elsewhere is reported as
// ErrSubscriptionLocked.
func withLock(ctx context.Context, l locker.Locker, key string, ttl time.Duration, fn func() error) error {
	release, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, locker.ErrNotAcquired) {
			return ErrSubscriptionLocked
		}
		return err
	}
	defer release()
	return fn()
}
