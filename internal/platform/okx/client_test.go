package okx

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

func messageHex(ticker string) string {
	msg := make([]byte, 256)
	copy(msg[224:232], ticker)
	return "0x" + hex.EncodeToString(msg)
}

func sigHex() string {
	return "0x" + hex.EncodeToString(make([]byte, 96))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:         srv.URL,
		RateLimitPerMin: 6000,
		Logger:          slog.New(slog.DiscardHandler),
	})
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "OKX", NewClient(ClientConfig{}).Name())
}

func TestClient_Fetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/open-oracle", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[{"messages":[%q,%q],"signatures":[%q,%q],"prices":{"BTC":"1"},"timestamp":"1"}]}`,
			messageHex("BTC"), messageHex("ETH"), sigHex(), sigHex())
	})

	batch, err := c.Fetch(context.Background(), []string{"btc"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "BTC", batch[0].Ticker)
	assert.Equal(t, "ETH", batch[1].Ticker)
}

func TestClient_FetchKeepsDecodableEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[{"messages":[%q,"0xzz"],"signatures":[%q,%q]}]}`,
			messageHex("BTC"), sigHex(), sigHex())
	})

	batch, err := c.Fetch(context.Background(), []string{"btc"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "BTC", batch[0].Ticker)
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transport bool
	}{
		{"api error code", 200, `{"code":"50011","msg":"too many requests","data":[]}`, true},
		{"empty data", 200, `{"code":"0","msg":"","data":[]}`, true},
		{"server error", 503, `unavailable`, true},
		{"bad json", 200, `{`, true},
		{"length mismatch", 200, fmt.Sprintf(`{"code":"0","data":[{"messages":[%q],"signatures":[]}]}`, messageHex("BTC")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Fetch(context.Background(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.transport, errors.Is(err, domain.ErrTransport))
		})
	}
}
