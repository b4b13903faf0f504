package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/db"
)

func TestGrowattPasswordHash(t *testing.T) {
	h := growattPasswordHash("secret")
	assert.Len(t, h, 32)
	assert.Equal(t, h, growattPasswordHash("secret"))
	assert.NotEqual(t, h, growattPasswordHash("other"))

	// Zero nibbles at even positions are replaced per the protocol.
	for i := 0; i < len(h); i += 2 {
		assert.NotEqual(t, byte('0'), h[i], "position %d", i)
	}
}

func newTestGrowatt(t *testing.T, baseURL string) *growattAdapter {
	t.Helper()
	v := vendorRecord(db.VendorTypeGrowatt, baseURL, db.Credentials{
		"username": "user",
		"password": "pass",
	})
	a, err := newGrowatt(v, newMemTokens(), zap.NewNop())
	require.NoError(t, err)
	a.retry = RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	return a
}

func TestGrowatt_LoginRetriesTransientFailures(t *testing.T) {
	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user/login", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error_code": 507,
				"error_msg":  "server busy",
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": 0,
			"data":       map[string]string{"token": "session-1"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := newTestGrowatt(t, srv.URL)
	tok, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-1", tok.AccessToken)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestGrowatt_LoginGivesUpAfterRetries(t *testing.T) {
	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": 10011,
			"error_msg":  "permission denied",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := newTestGrowatt(t, srv.URL)
	_, err := a.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestGrowatt_SessionTokenAssumedLifetime(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": 0,
			"data":       map[string]string{"token": "session-1"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := newTestGrowatt(t, srv.URL)
	tok, err := a.Authenticate(context.Background())
	require.NoError(t, err)

	remaining := time.Until(tok.ExpiresAt)
	assert.Greater(t, remaining, 11*time.Hour)
	assert.LessOrEqual(t, remaining, growattSessionLifetime)
}

func TestGrowatt_AlertsCarryNoVendorAlertID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": 0,
			"data":       map[string]string{"token": "session-1"},
		})
	})
	mux.HandleFunc("/v1/fault/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": 0,
			"data": map[string]interface{}{
				"faults": []map[string]interface{}{{
					"device_sn": "SN123",
					"fault":     "Inverter fault 302",
					"solution":  "Restart the inverter",
					"level":     2,
					"time":      "2026-03-10 10:15:00",
				}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := newTestGrowatt(t, srv.URL)
	alerts, err := a.GetAlerts(context.Background(), "77")
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	assert.Nil(t, alerts[0].VendorAlertID)
	assert.Equal(t, "Inverter fault 302 (SN123)", alerts[0].Title)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC), alerts[0].StartedAt)
}
