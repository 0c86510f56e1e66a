package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"quickcart/internal/domain"
)

var errNoRedirect = errors.New("mobile money response has no redirect url")

type mobileMoneyClient struct {
	apiURL  string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*MobileMoneySession]
}

// NewMobileMoneyClient talks to the partner's hosted payment API. A nil
// httpClient gets a client with a 15 second timeout.
func NewMobileMoneyClient(apiURL, apiKey string, httpClient *http.Client) MobileMoneyGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &mobileMoneyClient{
		apiURL:  apiURL,
		apiKey:  apiKey,
		http:    httpClient,
		breaker: newBreaker[*MobileMoneySession]("mobile-money"),
	}
}

func (c *mobileMoneyClient) CreatePayment(ctx context.Context, req MobileMoneyRequest) (*MobileMoneySession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal mobile money request: %w", err)
	}

	sess, err := c.breaker.Execute(func() (*MobileMoneySession, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: mobile money: %w", domain.ErrUpstreamProcessor, err)
	}
	return sess, nil
}

func (c *mobileMoneyClient) post(ctx context.Context, body []byte) (*MobileMoneySession, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("partner returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var sess MobileMoneySession
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode partner response: %w", err)
	}
	if sess.URL == "" {
		return nil, errNoRedirect
	}
	return &sess, nil
}
