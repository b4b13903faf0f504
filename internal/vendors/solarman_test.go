package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
)

func solarmanTestServer(t *testing.T, logins *int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/account/v1.0/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(logins, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":      true,
			"access_token": "tok-1",
			"expires_in":   "3600",
		})
	})
	mux.HandleFunc("/station/v1.0/station-list", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"total":   1,
			"stationList": []map[string]interface{}{{
				"id":                   42,
				"name":                 "Rooftop A",
				"installedCapacity":    110.5,
				"generationPower":      55000, // watts
				"generationValue":      310.2,
				"generationValueTotal": 99000.0,
				"networkStatus":        "NORMAL",
				"lastUpdateTime":       1767954600,
			}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSolarman(t *testing.T, baseURL string) *solarmanAdapter {
	t.Helper()
	v := vendorRecord(db.VendorTypeSolarman, baseURL, db.Credentials{
		"app_id":     "app",
		"app_secret": "secret",
		"username":   "user",
		"password":   "pass",
	})
	a, err := newSolarman(v, newMemTokens(), zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestSolarman_ListPlantsNormalizes(t *testing.T) {
	var logins int32
	srv := solarmanTestServer(t, &logins)
	a := newTestSolarman(t, srv.URL)

	plants, err := a.ListPlants(context.Background())
	require.NoError(t, err)
	require.Len(t, plants, 1)

	p := plants[0]
	assert.Equal(t, "42", p.VendorPlantID)
	assert.Equal(t, "Rooftop A", p.Name)
	assert.Equal(t, 110.5, p.CapacityKw)
	assert.Equal(t, 55.0, p.CurrentPowerKw, "vendor reports watts")
	assert.True(t, p.Online)
	require.NotNil(t, p.LastVendorPush)
}

func TestSolarman_TokenIsCachedAcrossCalls(t *testing.T) {
	var logins int32
	srv := solarmanTestServer(t, &logins)
	a := newTestSolarman(t, srv.URL)

	_, err := a.ListPlants(context.Background())
	require.NoError(t, err)
	_, err = a.ListPlants(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&logins), "a valid cached token must not trigger a second login")
}

func TestSolarman_LoginRejectionIsAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/v1.0/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"msg":     "bad credentials",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := newTestSolarman(t, srv.URL)
	_, err := a.ListPlants(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "bad credentials")
}

func TestSolarmanSeverity(t *testing.T) {
	assert.Equal(t, core.SeverityLow, solarmanSeverity(0))
	assert.Equal(t, core.SeverityMedium, solarmanSeverity(1))
	assert.Equal(t, core.SeverityHigh, solarmanSeverity(2))
	assert.Equal(t, core.SeverityCritical, solarmanSeverity(3))
	assert.Equal(t, core.SeverityCritical, solarmanSeverity(9))
}
