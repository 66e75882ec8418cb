package contracts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/contracthub/contracthub/jobs"
)

// Webhook request headers.
const (
	HeaderSignature  = "X-Signature"
	HeaderTimestamp  = "X-Timestamp"
	HeaderDeliveryID = "X-Delivery-ID"
)

// WebhookClient renders contract documents through the automation webhook.
type WebhookClient struct {
	url        string
	secret     []byte
	httpClient *http.Client
	now        func() time.Time
}

// NewWebhookClient constructs a new client.
func NewWebhookClient(url, secret string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WebhookClient{
		url:        url,
		secret:     []byte(secret),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type webhookRequest struct {
	Event      string    `json:"event"`
	DeliveryID string    `json:"delivery_id"`
	Contract   Contract  `json:"contract"`
	SentAt     time.Time `json:"sent_at"`
}

type webhookResponse struct {
	DocumentURL string `json:"document_url"`
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Render posts the contract and returns the document URL from the response.
// 4xx responses wrap jobs.ErrPermanent.
func (c *WebhookClient) Render(ctx context.Context, contract Contract) (string, error) {
	now := c.now().UTC()
	delivery := uuid.NewString()
	body, err := json.Marshal(webhookRequest{
		Event:      "contract.generate",
		DeliveryID: delivery,
		Contract:   contract,
		SentAt:     now,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", jobs.ErrPermanent, err)
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDeliveryID, delivery)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, "sha256="+Sign(c.secret, ts, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: webhook returned status %d", jobs.ErrPermanent, resp.StatusCode)
	}
	var out webhookResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode webhook response: %v", jobs.ErrPermanent, err)
	}
	if out.DocumentURL == "" {
		return "", errors.Join(jobs.ErrPermanent, errors.New("webhook response has no document_url"))
	}
	return out.DocumentURL, nil
}
