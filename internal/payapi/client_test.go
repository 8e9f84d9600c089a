package payapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestAuthenticateSendsCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/token", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body["email"])
		assert.Equal(t, "123456", body["code"])
		_ = json.NewEncoder(w).Encode(AuthResult{Token: "tok", TenantID: "org-1"})
	})

	res, err := c.Authenticate(context.Background(), "user@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, "org-1", res.TenantID)
}

func TestBearerTokenAndIdempotencyKey(t *testing.T) {
	var gotAuth, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewEncoder(w).Encode(TransferResult{TransferID: "t-1", Status: "completed"})
	})

	res, err := c.SendToEmail(context.Background(), "tok", EmailTransferRequest{
		RecipientEmail: "a@b.c",
		Amount:         "2500000000",
		PurposeCode:    "gift",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.TransferID)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.NotEmpty(t, gotKey)
}

func TestStructuredErrorDecoding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"AMOUNT_TOO_LOW","message":"Minimum transfer is 1.00"}`))
	})

	_, err := c.WithdrawToBank(context.Background(), "tok", WithdrawRequest{Amount: "1"})
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "AMOUNT_TOO_LOW", apiErr.ErrCode)
	assert.Equal(t, "Minimum transfer is 1.00", apiErr.UserMessage())
	assert.False(t, IsAuthError(err))
}

func TestAuthErrorDetection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"TOKEN_EXPIRED","message":"Session expired"}`))
	})

	_, err := c.GetProfile(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestErrorFallbackMessageOnEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.RequestLoginCode(context.Background(), "user@example.com")
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}

func TestBatchPartialFailureIsData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(BatchResult{
			BatchID: "b-1",
			Items: []BatchItemResult{
				{PayeeID: "p-1", TransferID: "t-1", Success: true},
				{PayeeID: "p-2", Success: false, Error: "insufficient funds"},
			},
		})
	})

	res, err := c.SendBatch(context.Background(), "tok", BatchRequest{
		Items: []BatchItem{{PayeeID: "p-1", Amount: "100"}, {PayeeID: "p-2", Amount: "200"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].Success)
	assert.False(t, res.Items[1].Success)
	assert.Equal(t, "insufficient funds", res.Items[1].Error)
}
