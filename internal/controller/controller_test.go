package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/serverutils"
	"hq-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "controller-secret"

func newTestApp(register func(api fiber.Router, mw Middleware)) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(logger.NewNopLogger()))
	register(app.Group("/api"), NewMiddleware(testSecret))
	return app
}

func token(t *testing.T, tenant uuid.UUID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": tenant.String(),
		"user_id":   "user-1",
		"role":      role,
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func do(t *testing.T, app *fiber.App, method, path, auth string, body interface{}) (*http.Response, serverutils.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var env serverutils.Response
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

type stubPlans struct {
	service.IPlanService
	created *dto.CreatePlanRequest
}

func (s *stubPlans) GetAvailablePlans(context.Context) ([]*dto.PlanResponse, error) {
	return []*dto.PlanResponse{{Name: "Growth"}}, nil
}

func (s *stubPlans) CreatePlan(_ context.Context, req *dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	s.created = req
	return &dto.PlanResponse{Id: uuid.New(), Name: req.Name}, nil
}

func (s *stubPlans) ComparePlans(_ context.Context, ids []uuid.UUID) (*dto.PlanComparisonResponse, error) {
	return &dto.PlanComparisonResponse{PriceDeltas: make([]decimal.Decimal, len(ids))}, nil
}

func TestPlanRoutes(t *testing.T) {
	plans := &stubPlans{}
	app := newTestApp(NewPlanController(plans).RegisterRoutes)
	tenant := uuid.New()

	resp, env := do(t, app, "GET", "/api/billing/plans", "", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, env.Success)

	newPlan := map[string]interface{}{
		"name":             "Starter",
		"price":            "19.00",
		"currency":         "USD",
		"billing_interval": "monthly",
	}
	resp, _ = do(t, app, "POST", "/api/billing/plans", "", newPlan)
	assert.Equal(t, 401, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/api/billing/plans", token(t, tenant, "member"), newPlan)
	assert.Equal(t, 403, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/api/billing/plans", token(t, tenant, "admin"), newPlan)
	assert.Equal(t, 201, resp.StatusCode)
	require.NotNil(t, plans.created)
	assert.Equal(t, "19", plans.created.Price.String())

	resp, env = do(t, app, "POST", "/api/billing/plans", token(t, tenant, "admin"), map[string]interface{}{"billing_interval": "weekly"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Len(t, env.Details, 3)

	resp, _ = do(t, app, "GET", "/api/billing/plans/compare?plan_ids="+uuid.NewString(), "", nil)
	assert.Equal(t, 400, resp.StatusCode)

	resp, _ = do(t, app, "GET", "/api/billing/plans/compare?plan_ids="+uuid.NewString()+","+uuid.NewString(), "", nil)
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = do(t, app, "GET", "/api/billing/plans/not-a-uuid", "", nil)
	assert.Equal(t, 400, resp.StatusCode)
}

type stubInvoices struct {
	service.IInvoiceService
	scope *uuid.UUID
}

func (s *stubInvoices) GetInvoice(_ context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.InvoiceResponse, error) {
	s.scope = tenantId
	if tenantId != nil && *tenantId != id {
		return nil, service.ErrInvoiceNotFound
	}
	return &dto.InvoiceResponse{Id: id}, nil
}

func (s *stubInvoices) ExportInvoices(context.Context, *uuid.UUID, *dto.ExportInvoicesRequest) (*dto.ExportFile, error) {
	return &dto.ExportFile{FileName: "invoices.csv", ContentType: "text/csv", Content: []byte("invoice_number\n")}, nil
}

type stubProvider struct {
	service.IProviderService
	paid       *dto.ProcessPaymentRequest
	webhookErr error
	headers    map[string]string
}

func (s *stubProvider) ProcessPayment(_ context.Context, _ *uuid.UUID, invoiceId uuid.UUID, req *dto.ProcessPaymentRequest) (*dto.PaymentTransactionResponse, error) {
	s.paid = req
	return &dto.PaymentTransactionResponse{Id: uuid.New(), InvoiceId: invoiceId, Status: "pending", RedirectUrl: "https://pay.example/x"}, nil
}

func (s *stubProvider) HandleWebhook(_ context.Context, provider string, _ []byte, headers map[string]string) (*dto.WebhookResponse, error) {
	s.headers = headers
	if s.webhookErr != nil {
		return nil, s.webhookErr
	}
	return &dto.WebhookResponse{Provider: provider, Applied: true}, nil
}

func TestInvoiceRoutesScopeByTenant(t *testing.T) {
	invoices := &stubInvoices{}
	provider := &stubProvider{}
	app := newTestApp(NewInvoiceController(invoices, provider).RegisterRoutes)
	tenant := uuid.New()

	resp, _ := do(t, app, "GET", "/api/billing/invoices/"+tenant.String(), token(t, tenant, "member"), nil)
	assert.Equal(t, 200, resp.StatusCode)
	require.NotNil(t, invoices.scope)
	assert.Equal(t, tenant, *invoices.scope)

	resp, env := do(t, app, "GET", "/api/billing/invoices/"+uuid.NewString(), token(t, tenant, "member"), nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "invoice not found", env.Error)

	resp, _ = do(t, app, "GET", "/api/billing/invoices/"+uuid.NewString(), token(t, tenant, "admin"), nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Nil(t, invoices.scope)

	resp, _ = do(t, app, "POST", "/api/billing/invoices/"+tenant.String()+"/pay", token(t, tenant, "member"), map[string]string{"provider": "paypal"})
	assert.Equal(t, 400, resp.StatusCode)

	resp, env = do(t, app, "POST", "/api/billing/invoices/"+tenant.String()+"/pay", token(t, tenant, "member"), map[string]string{"provider": "midtrans"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "midtrans", provider.paid.Provider)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "https://pay.example/x", data["redirect_url"])

	resp, _ = do(t, app, "PUT", "/api/billing/invoices/"+tenant.String()+"/status", token(t, tenant, "member"), map[string]string{"status": "paid"})
	assert.Equal(t, 403, resp.StatusCode)

	req := httptest.NewRequest("GET", "/api/billing/invoices/export?format=csv", nil)
	req.Header.Set("Authorization", token(t, tenant, "member"))
	raw, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, raw.StatusCode)
	assert.Equal(t, "text/csv", raw.Header.Get("Content-Type"))
	assert.Contains(t, raw.Header.Get("Content-Disposition"), "invoices.csv")
}

func TestWebhookRoute(t *testing.T) {
	provider := &stubProvider{}
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(logger.NewNopLogger()))
	NewWebhookController(provider, logger.NewNopLogger()).RegisterRoutes(app.Group("/api"))

	req := httptest.NewRequest("POST", "/api/billing/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "t=1,v1=abc", provider.headers["Stripe-Signature"])

	provider.webhookErr = service.ErrInvalidSignature
	resp, _ = do(t, app, "POST", "/api/billing/webhooks/midtrans", "", map[string]string{"order_id": "x"})
	assert.Equal(t, 401, resp.StatusCode)
}

type stubSubscriptions struct {
	service.ISubscriptionService
	current *dto.SubscriptionResponse
	paused  uuid.UUID
}

func (s *stubSubscriptions) GetTenantSubscription(_ context.Context, tenantId uuid.UUID) (*dto.SubscriptionResponse, error) {
	if s.current == nil || s.current.TenantId != tenantId {
		return nil, service.ErrSubscriptionNotFound
	}
	return s.current, nil
}

func (s *stubSubscriptions) PauseSubscription(_ context.Context, _ *uuid.UUID, id uuid.UUID) (*dto.SubscriptionResponse, error) {
	s.paused = id
	return s.current, nil
}

func TestSubscriptionRoutesUseTenantSubscription(t *testing.T) {
	tenant := uuid.New()
	subs := &stubSubscriptions{current: &dto.SubscriptionResponse{Id: uuid.New(), TenantId: tenant, Status: "active"}}
	app := newTestApp(NewSubscriptionController(subs).RegisterRoutes)

	resp, _ := do(t, app, "POST", "/api/billing/subscription/pause", token(t, tenant, "member"), nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, subs.current.Id, subs.paused)

	resp, _ = do(t, app, "GET", "/api/billing/subscription", token(t, uuid.New(), "member"), nil)
	assert.Equal(t, 404, resp.StatusCode)
}

type stubUsage struct {
	service.IUsageService
}

func TestUsageRoutesValidate(t *testing.T) {
	app := newTestApp(NewUsageController(&stubUsage{}).RegisterRoutes)
	tenant := uuid.New()

	resp, env := do(t, app, "POST", "/api/billing/usage", token(t, tenant, "member"), map[string]interface{}{"value": "1"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, []string{"metric_name is required"}, env.Details)

	resp, env = do(t, app, "GET", "/api/billing/usage/overage?start=yesterday", token(t, tenant, "member"), nil)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Len(t, env.Details, 2)
}
