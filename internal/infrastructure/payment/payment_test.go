package payment

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"quickcart/internal/domain"
)

const testWebhookSecret = "whsec_test_secret"

func stripeHeader(payload []byte, secret string, ts time.Time) string {
	sig := webhook.ComputeSignature(ts, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2023-10-16",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "status": "complete",
      "payment_status": "paid",
      "amount_total": 18000,
      "currency": "bdt",
      "payment_intent": "pi_1",
      "invoice": "in_1",
      "created": 1767225600,
      "metadata": {"orderNumber": "ORD-20260101-ABCDEF", "customerEmail": "ana@example.com"},
      "total_details": {"amount_discount": 2000, "amount_shipping": 0, "amount_tax": 0},
      "customer_details": {"email": "ana@example.com"}
    }
  }
}`

func TestStripeParseEvent_Completed(t *testing.T) {
	p := NewStripeProcessor("sk_test_unused", testWebhookSecret)
	payload := []byte(completedEvent)

	ev, err := p.ParseEvent(payload, stripeHeader(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "cs_test_1", ev.Session.ID)
	assert.Equal(t, "pi_1", ev.Session.PaymentIntentID)
	assert.Equal(t, "in_1", ev.Session.InvoiceID)
	assert.Equal(t, int64(18000), ev.Session.AmountTotal)
	assert.Equal(t, int64(2000), ev.Session.AmountDiscount)
	assert.Equal(t, "bdt", ev.Session.Currency)
	assert.Equal(t, "ORD-20260101-ABCDEF", ev.Session.Metadata["orderNumber"])
	assert.True(t, ev.Session.Paid())
}

func TestStripeParseEvent_OtherType(t *testing.T) {
	p := NewStripeProcessor("sk_test_unused", testWebhookSecret)
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

	ev, err := p.ParseEvent(payload, stripeHeader(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.created", ev.Type)
	assert.Nil(t, ev.Session)
}

func TestStripeParseEvent_Rejects(t *testing.T) {
	payload := []byte(completedEvent)
	tampered := []byte(completedEvent[:len(completedEvent)-2] + " }")

	tests := []struct {
		name    string
		secret  string
		payload []byte
		header  string
	}{
		{name: "missing header", secret: testWebhookSecret, payload: payload, header: ""},
		{name: "missing secret", secret: "", payload: payload, header: stripeHeader(payload, testWebhookSecret, time.Now())},
		{name: "wrong secret", secret: testWebhookSecret, payload: payload, header: stripeHeader(payload, "whsec_other", time.Now())},
		{name: "tampered body", secret: testWebhookSecret, payload: tampered, header: stripeHeader(payload, testWebhookSecret, time.Now())},
		{name: "stale timestamp", secret: testWebhookSecret, payload: payload, header: stripeHeader(payload, testWebhookSecret, time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewStripeProcessor("sk_test_unused", tt.secret)
			_, err := p.ParseEvent(tt.payload, tt.header)
			assert.ErrorIs(t, err, domain.ErrInvalidSignature)
		})
	}
}

func TestCheckoutSessionPaid(t *testing.T) {
	assert.True(t, CheckoutSession{Status: "complete", PaymentStatus: "paid"}.Paid())
	assert.True(t, CheckoutSession{Status: "complete", PaymentStatus: "no_payment_required"}.Paid())
	assert.False(t, CheckoutSession{Status: "complete", PaymentStatus: "unpaid"}.Paid())
	assert.False(t, CheckoutSession{Status: "open", PaymentStatus: "paid"}.Paid())
}

func TestMobileMoneyCreatePayment(t *testing.T) {
	var got MobileMoneyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"url":"https://pay.partner.test/abc","paymentId":"TRX-1"}`))
	}))
	defer srv.Close()

	c := NewMobileMoneyClient(srv.URL, "key-1", srv.Client())
	req := MobileMoneyRequest{
		Items:    []MobileMoneyItem{{ProductID: "p1", Name: "Shoe", Price: decimal.NewFromInt(90), Quantity: 2}},
		Metadata: domain.Metadata{OrderNumber: "ORD-1", CustomerName: "Ana", CustomerEmail: "ana@example.com"},
		Currency: "BDT",
	}

	sess, err := c.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.partner.test/abc", sess.URL)
	assert.Equal(t, "TRX-1", sess.Reference)
	assert.Equal(t, "ORD-1", got.Metadata.OrderNumber)
	require.Len(t, got.Items, 1)
	assert.True(t, decimal.NewFromInt(90).Equal(got.Items[0].Price))
}

func TestMobileMoneyCreatePayment_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "no redirect url",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"paymentId":"TRX-1"}`))
			},
		},
		{
			name: "partner error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "bad merchant", http.StatusBadGateway)
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewMobileMoneyClient(srv.URL, "", srv.Client())
			_, err := c.CreatePayment(context.Background(), MobileMoneyRequest{})
			assert.ErrorIs(t, err, domain.ErrUpstreamProcessor)
		})
	}
}

func TestMobileMoneyBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewMobileMoneyClient(srv.URL, "", srv.Client())
	for i := 0; i < 10; i++ {
		_, err := c.CreatePayment(context.Background(), MobileMoneyRequest{})
		assert.ErrorIs(t, err, domain.ErrUpstreamProcessor)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestSimulatedProcessor(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProcessor("sim-secret", 0)

	url, err := p.CreateSession(ctx, CardSessionRequest{
		Lines:    []CardLine{{ProductID: "p1", UnitAmount: 10000, Quantity: 2}},
		Currency: "BDT",
		Metadata: map[string]string{"orderNumber": "ORD-1"},
	})
	require.NoError(t, err)
	sessionID := url[len("https://checkout.simulated/pay/"):]

	before, err := p.CompletedSessions(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, before)

	payload, sig, delivered, err := p.Pay(sessionID)
	require.NoError(t, err)
	require.True(t, delivered)

	ev, err := p.ParseEvent(payload, sig)
	require.NoError(t, err)
	require.NotNil(t, ev.Session)
	assert.Equal(t, int64(20000), ev.Session.AmountTotal)
	assert.True(t, ev.Session.Paid())

	_, err = p.ParseEvent(payload, "forged")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	lines, err := p.LineItems(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, []SessionLine{{ProductID: "p1", Quantity: 2}}, lines)

	inv, err := p.Invoice(ctx, ev.Session.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, ev.Session.InvoiceID, inv.ID)

	after, err := p.CompletedSessions(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestSimulatedProcessor_ParseWhilePaying(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProcessor("sim-secret", 0)

	url, err := p.CreateSession(ctx, CardSessionRequest{
		Lines:    []CardLine{{ProductID: "p1", UnitAmount: 500, Quantity: 1}},
		Currency: "BDT",
	})
	require.NoError(t, err)
	sessionID := url[len("https://checkout.simulated/pay/"):]
	payload, sig, _, err := p.Pay(sessionID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			_, _, _, _ = p.Pay(sessionID)
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			ev, err := p.ParseEvent(payload, sig)
			if assert.NoError(t, err) {
				assert.True(t, ev.Session.Paid())
			}
		}
	}()
	wg.Wait()
}

func TestSimulatedProcessor_LosesDeliveries(t *testing.T) {
	p := NewSimulatedProcessor("sim-secret", 100)
	url, err := p.CreateSession(context.Background(), CardSessionRequest{Currency: "BDT"})
	require.NoError(t, err)

	_, _, delivered, err := p.Pay(url[len("https://checkout.simulated/pay/"):])
	require.NoError(t, err)
	assert.False(t, delivered)
}
