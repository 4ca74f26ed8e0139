package breachwatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestClient(serverURL string) interfaces.BreachLookupClient {
	return NewClient(&config.BreachWatchConfig{
		APIKey:    "test-key",
		BaseURL:   serverURL,
		UserAgent: "veilmail-relay-test",
	}, getLogger())
}

func TestLookupBreaches_CleanAddress(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	result, err := client.LookupBreaches(context.Background(), "shop-x7k2@veilmail.io")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, interfaces.BreachLookupNotFound, result.Kind)
	assert.Empty(t, result.Breaches)
}

func TestLookupBreaches_Found(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("hibp-api-key"))
		assert.Contains(t, r.URL.Path, "/breachedaccount/")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"Name":"MegaShop","Title":"MegaShop","Domain":"megashop.example","BreachDate":"2025-11-02",
			 "DataClasses":["Email addresses","Passwords"],
			 "IsVerified":true,"IsFabricated":false,"IsRetired":false,"IsSpamList":false,"IsSensitive":false}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	result, err := client.LookupBreaches(context.Background(), "shop-x7k2@veilmail.io")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, interfaces.BreachLookupFound, result.Kind)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, "MegaShop", result.Breaches[0].Name)
	assert.True(t, result.Breaches[0].IsVerified)
	assert.Equal(t, []string{"Email addresses", "Passwords"}, result.Breaches[0].DataClasses)
}

func TestLookupBreaches_RateLimited(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	result, err := client.LookupBreaches(context.Background(), "shop-x7k2@veilmail.io")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, interfaces.BreachLookupRateLimited, result.Kind)
	assert.Equal(t, 7*time.Second, result.RetryAfter)
}

func TestLookupBreaches_ServerError(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	result, err := client.LookupBreaches(context.Background(), "shop-x7k2@veilmail.io")

	// Assert
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestLookupPastes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		expectSeen bool
	}{
		{"token not seen", http.StatusNotFound, false},
		{"token seen", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusOK {
					w.Write([]byte(`[{"Source":"Pastebin","Id":"abc"}]`))
					return
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL)

			seen, err := client.LookupPastes(context.Background(), "a1b2c3d4")

			require.NoError(t, err)
			assert.Equal(t, tt.expectSeen, seen)
		})
	}
}

func TestLookupPastes_RateLimited(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	seen, err := client.LookupPastes(context.Background(), "a1b2c3d4")

	// Assert
	assert.False(t, seen)
	rateLimited, ok := relayerrors.IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, rateLimited.RetryAfter)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("not-a-number"))
}
