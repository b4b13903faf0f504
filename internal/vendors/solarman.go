package vendors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/tokencache"
)

// solarmanAdapter talks to the Solarman Business API. Auth is a bearer
// token obtained from app credentials; the vendor returns an explicit
// expires_in, so no claim decoding is needed.
type solarmanAdapter struct {
	vendor *db.Vendor
	tokens tokencache.Store
	client *resty.Client
	logger *zap.Logger
}

func newSolarman(v *db.Vendor, tokens tokencache.Store, logger *zap.Logger) (*solarmanAdapter, error) {
	if err := requireCreds(v, "app_id", "app_secret", "username", "password"); err != nil {
		return nil, err
	}

	return &solarmanAdapter{
		vendor: v,
		tokens: tokens,
		client: newClient(v.BaseURL, rate.NewLimiter(rate.Limit(5), 10)),
		logger: logger,
	}, nil
}

type solarmanEnvelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Msg     string `json:"msg"`
}

type solarmanStation struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	InstalledCapacity float64  `json:"installedCapacity"`
	LocationLat       *float64 `json:"locationLat"`
	LocationLng       *float64 `json:"locationLng"`
	LocationAddress   *string  `json:"locationAddress"`
	GenerationPower   float64  `json:"generationPower"`
	GenerationValue   float64  `json:"generationValue"`
	MonthGeneration   float64  `json:"generationValueMonth"`
	YearGeneration    float64  `json:"generationValueYear"`
	TotalGeneration   float64  `json:"generationValueTotal"`
	LastUpdateTime    int64    `json:"lastUpdateTime"`
	NetworkStatus     string   `json:"networkStatus"`
}

func (a *solarmanAdapter) Authenticate(ctx context.Context) (*tokencache.Token, error) {
	return cachedOrLogin(ctx, a.vendor.ID, a.tokens, a.logger, a.login)
}

func (a *solarmanAdapter) login(ctx context.Context) (*tokencache.Token, error) {
	passwordHash := sha256.Sum256([]byte(a.vendor.Credentials["password"]))

	var out struct {
		solarmanEnvelope
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("appId", a.vendor.Credentials["app_id"]).
		SetBody(map[string]string{
			"appSecret": a.vendor.Credentials["app_secret"],
			"username":  a.vendor.Credentials["username"],
			"password":  hex.EncodeToString(passwordHash[:]),
		}).
		SetResult(&out).
		Post("/account/v1.0/token")
	if err != nil {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: "login request failed", Err: err}
	}
	if resp.IsError() {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: fmt.Sprintf("login rejected (HTTP %d)", resp.StatusCode())}
	}
	if !out.Success || out.AccessToken == "" {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: fmt.Sprintf("login rejected: %s", out.Msg)}
	}

	expiresIn, err := strconv.ParseInt(out.ExpiresIn, 10, 64)
	if err != nil || expiresIn <= 0 {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: fmt.Sprintf("invalid expires_in %q", out.ExpiresIn)}
	}

	return &tokencache.Token{
		AccessToken: out.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func (a *solarmanAdapter) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	tok, err := a.Authenticate(ctx)
	if err != nil {
		return err
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(tok.AccessToken).
		SetBody(body).
		SetResult(out).
		Post(path)
	if err != nil {
		return &UpstreamError{Vendor: a.vendor.Name, Message: "request failed", Err: err}
	}
	if resp.IsError() {
		return &UpstreamError{Vendor: a.vendor.Name, Status: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

func (a *solarmanAdapter) ListPlants(ctx context.Context) ([]core.Plant, error) {
	var plants []core.Plant

	for page := 1; ; page++ {
		var out struct {
			solarmanEnvelope
			Total       int               `json:"total"`
			StationList []solarmanStation `json:"stationList"`
		}

		err := a.post(ctx, "/station/v1.0/station-list", map[string]int{"page": page, "size": 100}, &out)
		if err != nil {
			return nil, err
		}
		if !out.Success {
			return nil, &UpstreamError{Vendor: a.vendor.Name, Message: out.Msg}
		}

		for _, s := range out.StationList {
			plants = append(plants, a.normalize(s))
		}

		if len(out.StationList) == 0 || len(plants) >= out.Total {
			break
		}
	}

	return plants, nil
}

func (a *solarmanAdapter) normalize(s solarmanStation) core.Plant {
	p := core.Plant{
		VendorPlantID:  strconv.FormatInt(s.ID, 10),
		Name:           s.Name,
		CapacityKw:     s.InstalledCapacity,
		Latitude:       s.LocationLat,
		Longitude:      s.LocationLng,
		Address:        s.LocationAddress,
		CurrentPowerKw: s.GenerationPower / 1000, // vendor reports watts
		EnergyTodayKwh: s.GenerationValue,
		EnergyMonthKwh: s.MonthGeneration,
		EnergyYearKwh:  s.YearGeneration,
		EnergyTotalKwh: s.TotalGeneration,
		Online:         s.NetworkStatus == "NORMAL",
	}
	if s.LastUpdateTime > 0 {
		t := time.Unix(s.LastUpdateTime, 0)
		p.LastVendorPush = &t
	}
	return p
}

func (a *solarmanAdapter) GetPlant(ctx context.Context, vendorPlantID string) (*core.Plant, error) {
	id, err := strconv.ParseInt(vendorPlantID, 10, 64)
	if err != nil {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("invalid station id %q", vendorPlantID)}
	}

	var out struct {
		solarmanEnvelope
		Station *solarmanStation `json:"station"`
	}

	if err := a.post(ctx, "/station/v1.0/station-detail", map[string]int64{"stationId": id}, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Station == nil {
		return nil, nil
	}

	p := a.normalize(*out.Station)
	return &p, nil
}

func (a *solarmanAdapter) GetAlerts(ctx context.Context, vendorPlantID string) ([]core.Alert, error) {
	var out struct {
		solarmanEnvelope
		AlertList []struct {
			AlertID   int64  `json:"alertId"`
			AlertName string `json:"alertName"`
			AlertDesc string `json:"alertDesc"`
			Level     int    `json:"level"`
			AlertTime int64  `json:"alertTime"`
			EndTime   int64  `json:"endTime"`
		} `json:"alertList"`
	}

	body := map[string]string{"stationId": vendorPlantID}
	if err := a.post(ctx, "/station/v1.0/alert-list", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: out.Msg}
	}

	alerts := make([]core.Alert, 0, len(out.AlertList))
	for _, raw := range out.AlertList {
		id := strconv.FormatInt(raw.AlertID, 10)
		alert := core.Alert{
			VendorAlertID: &id,
			VendorPlantID: vendorPlantID,
			Title:         raw.AlertName,
			Description:   raw.AlertDesc,
			Severity:      solarmanSeverity(raw.Level),
			StartedAt:     time.Unix(raw.AlertTime, 0),
		}
		if raw.EndTime > 0 {
			t := time.Unix(raw.EndTime, 0)
			alert.EndedAt = &t
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func solarmanSeverity(level int) core.Severity {
	switch {
	case level >= 3:
		return core.SeverityCritical
	case level == 2:
		return core.SeverityHigh
	case level == 1:
		return core.SeverityMedium
	default:
		return core.SeverityLow
	}
}

func (a *solarmanAdapter) GetTelemetry(ctx context.Context, vendorPlantID string, day time.Time) ([]core.Reading, error) {
	var out struct {
		solarmanEnvelope
		StationDataItems []struct {
			DateTime        int64   `json:"dateTime"`
			GenerationPower float64 `json:"generationPower"`
			GenerationValue float64 `json:"generationValue"`
		} `json:"stationDataItems"`
	}

	body := map[string]interface{}{
		"stationId": vendorPlantID,
		"timeType":  1,
		"startTime": day.Format("2006-01-02"),
		"endTime":   day.Format("2006-01-02"),
	}
	if err := a.post(ctx, "/station/v1.0/history", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: out.Msg}
	}

	readings := make([]core.Reading, 0, len(out.StationDataItems))
	for _, item := range out.StationDataItems {
		readings = append(readings, core.Reading{
			TakenAt:   time.Unix(item.DateTime, 0),
			PowerKw:   item.GenerationPower / 1000,
			EnergyKwh: item.GenerationValue,
		})
	}
	return readings, nil
}

func (a *solarmanAdapter) GetRealtime(ctx context.Context, vendorPlantID string) (*core.Realtime, error) {
	var out struct {
		solarmanEnvelope
		GenerationPower float64 `json:"generationPower"`
		LastUpdateTime  int64   `json:"lastUpdateTime"`
		NetworkStatus   string  `json:"networkStatus"`
	}

	body := map[string]string{"stationId": vendorPlantID}
	if err := a.post(ctx, "/station/v1.0/real-time", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: out.Msg}
	}

	return &core.Realtime{
		TakenAt: time.Unix(out.LastUpdateTime, 0),
		PowerKw: out.GenerationPower / 1000,
		Online:  out.NetworkStatus == "NORMAL",
	}, nil
}
