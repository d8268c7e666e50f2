package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadBillingDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 7, cfg.Billing.PaymentTermsDays)
	assert.Equal(t, 30, cfg.Billing.DunningDays)
	assert.Equal(t, 15*time.Second, cfg.Billing.ProviderTimeout)
	assert.False(t, cfg.Midtrans.IsProduction)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BILLING_DUNNING_DAYS", "45")
	t.Setenv("BILLING_PROVIDER_TIMEOUT", "3s")
	t.Setenv("MIDTRANS_IS_PRODUCTION", "true")
	t.Setenv("BILLING_PAYMENT_TERMS_DAYS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 45, cfg.Billing.DunningDays)
	assert.Equal(t, 3*time.Second, cfg.Billing.ProviderTimeout)
	assert.True(t, cfg.Midtrans.IsProduction)
	assert.Equal(t, 7, cfg.Billing.PaymentTermsDays)
}

func TestValidate(t *testing.T) {
	t.Setenv("DB_CONNECTION_STRING", "")
	t.Setenv("JWT_SECRET", "")
	cfg := Load()

	err := cfg.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "DB_CONNECTION_STRING")
		assert.Contains(t, err.Error(), "JWT_SECRET")
	}

	cfg.Database.Connection = "postgres://localhost/billing"
	cfg.App.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Billing.ProviderTimeout = 0
	assert.Error(t, cfg.Validate())
}
