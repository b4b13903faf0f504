package vendors

import (
	"context"
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

// huaweiSessionLifetime is assumed: the vendor returns a session token
// with no expiry of its own.
const huaweiSessionLifetime = 24 * time.Hour

// huaweiAdapter talks to the FusionSolar northbound API. Login yields an
// XSRF session token; transient login failures and missing-token
// responses are retried with linearly increasing backoff.
type huaweiAdapter struct {
	vendor *db.Vendor
	tokens tokencache.Store
	client *resty.Client
	logger *zap.Logger
	retry  RetryPolicy
}

func newHuawei(v *db.Vendor, tokens tokencache.Store, logger *zap.Logger) (*huaweiAdapter, error) {
	if err := requireCreds(v, "username", "system_code"); err != nil {
		return nil, err
	}

	return &huaweiAdapter{
		vendor: v,
		tokens: tokens,
		client: newClient(v.BaseURL, rate.NewLimiter(rate.Limit(1), 3)),
		logger: logger,
		retry:  RetryPolicy{Attempts: 3, Backoff: 2 * time.Second},
	}, nil
}

type huaweiEnvelope struct {
	Success  bool   `json:"success"`
	FailCode int    `json:"failCode"`
	Message  string `json:"message"`
}

func (a *huaweiAdapter) Authenticate(ctx context.Context) (*tokencache.Token, error) {
	return cachedOrLogin(ctx, a.vendor.ID, a.tokens, a.logger, a.login)
}

func (a *huaweiAdapter) login(ctx context.Context) (*tokencache.Token, error) {
	var token string

	err := a.retry.Do(ctx, func() error {
		var out huaweiEnvelope

		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"userName":   a.vendor.Credentials["username"],
				"systemCode": a.vendor.Credentials["system_code"],
			}).
			SetResult(&out).
			Post("/thirdData/login")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("login rejected (HTTP %d)", resp.StatusCode())
		}
		if !out.Success {
			return fmt.Errorf("login rejected: failCode %d %s", out.FailCode, out.Message)
		}

		// The session token travels back as the XSRF-TOKEN header.
		token = resp.Header().Get("XSRF-TOKEN")
		if token == "" {
			return fmt.Errorf("login response carried no session token")
		}
		return nil
	})
	if err != nil {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: "login failed after retries", Err: err}
	}

	return &tokencache.Token{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(huaweiSessionLifetime),
	}, nil
}

func (a *huaweiAdapter) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	tok, err := a.Authenticate(ctx)
	if err != nil {
		return err
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("XSRF-TOKEN", tok.AccessToken).
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

func (a *huaweiAdapter) ListPlants(ctx context.Context) ([]core.Plant, error) {
	var plants []core.Plant

	for page := 1; ; page++ {
		var out struct {
			huaweiEnvelope
			Data struct {
				Total int `json:"total"`
				List  []struct {
					PlantCode    string   `json:"plantCode"`
					PlantName    string   `json:"plantName"`
					Capacity     float64  `json:"capacity"` // MW on this API
					Longitude    *float64 `json:"longitude"`
					Latitude     *float64 `json:"latitude"`
					PlantAddress *string  `json:"plantAddress"`
				} `json:"list"`
			} `json:"data"`
		}

		body := map[string]int{"pageNo": page, "pageSize": 100}
		if err := a.post(ctx, "/thirdData/stations", body, &out); err != nil {
			return nil, err
		}
		if !out.Success {
			return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("failCode %d: %s", out.FailCode, out.Message)}
		}

		for _, s := range out.Data.List {
			plants = append(plants, core.Plant{
				VendorPlantID: s.PlantCode,
				Name:          s.PlantName,
				CapacityKw:    s.Capacity * 1000,
				Latitude:      s.Latitude,
				Longitude:     s.Longitude,
				Address:       s.PlantAddress,
			})
		}

		if len(out.Data.List) == 0 || len(plants) >= out.Data.Total {
			break
		}
	}

	// The station listing carries no production figures; fill them from
	// the realtime KPI so the normalized plants are complete.
	for i := range plants {
		rt, err := a.GetRealtime(ctx, plants[i].VendorPlantID)
		if err != nil {
			a.logger.Warn("Failed to fetch realtime KPI during listing",
				zap.String("vendor_plant_id", plants[i].VendorPlantID),
				zap.Error(err),
			)
			continue
		}
		plants[i].CurrentPowerKw = rt.PowerKw
		plants[i].Online = rt.Online
		t := rt.TakenAt
		plants[i].LastVendorPush = &t
	}

	return plants, nil
}

// GetPlant cannot be served without a full listing on this API; the
// telemetry pipeline falls back to ListPlants when it sees ErrUnsupported.
func (a *huaweiAdapter) GetPlant(ctx context.Context, vendorPlantID string) (*core.Plant, error) {
	return nil, ErrUnsupported
}

func (a *huaweiAdapter) GetAlerts(ctx context.Context, vendorPlantID string) ([]core.Alert, error) {
	var out struct {
		huaweiEnvelope
		Data []struct {
			AlarmID    int64  `json:"alarmId"`
			AlarmName  string `json:"alarmName"`
			AlarmCause string `json:"alarmCause"`
			Lev        int    `json:"lev"`
			RaiseTime  int64  `json:"raiseTime"` // milliseconds
			ClearTime  int64  `json:"clearTime"`
		} `json:"data"`
	}

	body := map[string]string{"stationCodes": vendorPlantID}
	if err := a.post(ctx, "/thirdData/getAlarmList", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("failCode %d: %s", out.FailCode, out.Message)}
	}

	alerts := make([]core.Alert, 0, len(out.Data))
	for _, raw := range out.Data {
		id := strconv.FormatInt(raw.AlarmID, 10)
		alert := core.Alert{
			VendorAlertID: &id,
			VendorPlantID: vendorPlantID,
			Title:         raw.AlarmName,
			Description:   raw.AlarmCause,
			Severity:      huaweiSeverity(raw.Lev),
			StartedAt:     time.UnixMilli(raw.RaiseTime),
		}
		if raw.ClearTime > 0 {
			t := time.UnixMilli(raw.ClearTime)
			alert.EndedAt = &t
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func huaweiSeverity(lev int) core.Severity {
	switch lev {
	case 1:
		return core.SeverityCritical
	case 2:
		return core.SeverityHigh
	case 3:
		return core.SeverityMedium
	default:
		return core.SeverityLow
	}
}

func (a *huaweiAdapter) GetTelemetry(ctx context.Context, vendorPlantID string, day time.Time) ([]core.Reading, error) {
	var out struct {
		huaweiEnvelope
		Data []struct {
			CollectTime int64 `json:"collectTime"` // milliseconds
			DataItemMap struct {
				Power      float64 `json:"power"`
				ProductKwh float64 `json:"product_power"`
			} `json:"dataItemMap"`
		} `json:"data"`
	}

	body := map[string]interface{}{
		"stationCodes": vendorPlantID,
		"collectTime":  day.UnixMilli(),
	}
	if err := a.post(ctx, "/thirdData/getKpiStationHour", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("failCode %d: %s", out.FailCode, out.Message)}
	}

	readings := make([]core.Reading, 0, len(out.Data))
	for _, item := range out.Data {
		readings = append(readings, core.Reading{
			TakenAt:   time.UnixMilli(item.CollectTime),
			PowerKw:   item.DataItemMap.Power,
			EnergyKwh: item.DataItemMap.ProductKwh,
		})
	}
	return readings, nil
}

func (a *huaweiAdapter) GetRealtime(ctx context.Context, vendorPlantID string) (*core.Realtime, error) {
	var out struct {
		huaweiEnvelope
		Data []struct {
			DataItemMap struct {
				RealHealthState int     `json:"real_health_state"`
				ActivePower     float64 `json:"active_power"`
			} `json:"dataItemMap"`
		} `json:"data"`
	}

	body := map[string]string{"stationCodes": vendorPlantID}
	if err := a.post(ctx, "/thirdData/getStationRealKpi", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("failCode %d: %s", out.FailCode, out.Message)}
	}
	if len(out.Data) == 0 {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: "empty realtime KPI response"}
	}

	item := out.Data[0].DataItemMap
	return &core.Realtime{
		TakenAt: time.Now(),
		PowerKw: item.ActivePower,
		Online:  item.RealHealthState != 3, // 3 = disconnected
	}, nil
}
