package coinbase

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/openoracle/internal/crypto"
	"github.com/alanyoungcy/openoracle/internal/domain"
)

var testAuth = crypto.HMACAuth{
	Key:        "key-1",
	Secret:     "Y29pbmJhc2UtdGVzdC1zZWNyZXQ=",
	Passphrase: "pass",
}

func messageHex(ticker string) string {
	msg := make([]byte, 256)
	copy(msg[224:232], ticker)
	return hex.EncodeToString(msg)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{
		Auth:            testAuth,
		BaseURL:         srv.URL,
		RateLimitPerMin: 6000,
		Logger:          slog.New(slog.DiscardHandler),
		Now:             func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)

	c, err := NewClient(ClientConfig{Auth: testAuth})
	require.NoError(t, err)
	assert.Equal(t, "Coinbase", c.Name())
}

func TestClient_FetchSignsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oracle", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("CB-ACCESS-KEY"))
		assert.Equal(t, "1700000000", r.Header.Get("CB-ACCESS-TIMESTAMP"))
		assert.Equal(t, "pass", r.Header.Get("CB-ACCESS-PASSPHRASE"))
		assert.Equal(t, "BDUe5TullPHqOijxn7yS84zhL4MSBfswhq7AJLRpofo=", r.Header.Get("CB-ACCESS-SIGN"))

		sig := hex.EncodeToString(make([]byte, 96))
		fmt.Fprintf(w, `{"timestamp":"1700000000","messages":[%q,%q],"signatures":[%q,%q],"prices":{}}`,
			messageHex("ETH"), messageHex("DAI"), sig, sig)
	})

	batch, err := c.Fetch(context.Background(), []string{"eth"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "ETH", batch[0].Ticker)
	assert.Equal(t, "DAI", batch[1].Ticker)
}

func TestClient_FetchUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid signature"}`))
	})

	_, err := c.Fetch(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestClient_FetchCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, nil)
	assert.Error(t, err)
}
