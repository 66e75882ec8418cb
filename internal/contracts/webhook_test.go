package contracts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub/contracthub/jobs"
)

func TestWebhookSignsAndReturnsURL(t *testing.T) {
	var gotEvent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		sig := strings.TrimPrefix(r.Header.Get(HeaderSignature), "sha256=")
		if sig != Sign([]byte("s3cret"), r.Header.Get(HeaderTimestamp), body) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NotEmpty(t, r.Header.Get(HeaderDeliveryID))
		var req webhookRequest
		require.NoError(t, json.Unmarshal(body, &req))
		gotEvent = req.Event
		_, _ = w.Write([]byte(`{"document_url":"https://docs.test/` + req.Contract.Number + `.pdf"}`))
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL, "s3cret", time.Second)
	url, err := client.Render(context.Background(), Contract{ID: 4, Number: "CH-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://docs.test/CH-1.pdf", url)
	assert.Equal(t, "contract.generate", gotEvent)

	bad := NewWebhookClient(srv.URL, "wrong", time.Second)
	_, err = bad.Render(context.Background(), Contract{ID: 4})
	require.ErrorIs(t, err, jobs.ErrPermanent)
}

func TestWebhookServerErrorsAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWebhookClient(srv.URL, "k", time.Second).Render(context.Background(), Contract{ID: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, jobs.ErrPermanent)
}

func TestWebhookMissingURLIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewWebhookClient(srv.URL, "k", time.Second).Render(context.Background(), Contract{ID: 1})
	require.ErrorIs(t, err, jobs.ErrPermanent)
}
