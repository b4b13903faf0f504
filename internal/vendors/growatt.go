package vendors

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/tokencache"
)

// growattSessionLifetime is assumed: the vendor returns a session token
// with no expiry of its own.
const growattSessionLifetime = 12 * time.Hour

// growattAdapter talks to the Growatt server API. Login sends the salted
// md5 the vendor's protocol prescribes and yields a session token;
// transient failures are retried with linearly increasing backoff.
type growattAdapter struct {
	vendor *db.Vendor
	tokens tokencache.Store
	client *resty.Client
	logger *zap.Logger
	retry  RetryPolicy
}

func newGrowatt(v *db.Vendor, tokens tokencache.Store, logger *zap.Logger) (*growattAdapter, error) {
	if err := requireCreds(v, "username", "password"); err != nil {
		return nil, err
	}

	return &growattAdapter{
		vendor: v,
		tokens: tokens,
		client: newClient(v.BaseURL, rate.NewLimiter(rate.Limit(2), 5)),
		logger: logger,
		retry:  RetryPolicy{Attempts: 3, Backoff: 2 * time.Second},
	}, nil
}

// growattPasswordHash is the vendor's salted md5 scheme: md5 of the
// salted password, with zero nibbles replaced by 'c' per their protocol.
func growattPasswordHash(password string) string {
	sum := md5.Sum([]byte("growatt" + password))
	h := []byte(hex.EncodeToString(sum[:]))
	for i := 0; i < len(h); i += 2 {
		if h[i] == '0' {
			h[i] = 'c'
		}
	}
	return string(h)
}

type growattEnvelope struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

func (a *growattAdapter) Authenticate(ctx context.Context) (*tokencache.Token, error) {
	return cachedOrLogin(ctx, a.vendor.ID, a.tokens, a.logger, a.login)
}

func (a *growattAdapter) login(ctx context.Context) (*tokencache.Token, error) {
	var token string

	err := a.retry.Do(ctx, func() error {
		var out struct {
			growattEnvelope
			Data struct {
				Token string `json:"token"`
			} `json:"data"`
		}

		resp, err := a.client.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"account":  a.vendor.Credentials["username"],
				"password": growattPasswordHash(a.vendor.Credentials["password"]),
			}).
			SetResult(&out).
			Post("/v1/user/login")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("login rejected (HTTP %d)", resp.StatusCode())
		}
		if out.ErrorCode != 0 {
			return fmt.Errorf("login rejected: error %d %s", out.ErrorCode, out.ErrorMsg)
		}
		if out.Data.Token == "" {
			return fmt.Errorf("login response carried no session token")
		}

		token = out.Data.Token
		return nil
	})
	if err != nil {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: "login failed after retries", Err: err}
	}

	return &tokencache.Token{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(growattSessionLifetime),
	}, nil
}

func (a *growattAdapter) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	tok, err := a.Authenticate(ctx)
	if err != nil {
		return err
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("token", tok.AccessToken).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return &UpstreamError{Vendor: a.vendor.Name, Message: "request failed", Err: err}
	}
	if resp.IsError() {
		return &UpstreamError{Vendor: a.vendor.Name, Status: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

type growattPlant struct {
	PlantID   int64   `json:"plant_id"`
	Name      string  `json:"name"`
	PeakPower float64 `json:"peak_power"` // kWp
	Latitude  *string `json:"latitude"`
	Longitude *string `json:"longitude"`
	City      *string `json:"city"`

	CurrentPower float64 `json:"current_power"`
	TodayEnergy  float64 `json:"today_energy"`
	MonthEnergy  float64 `json:"month_energy"`
	YearEnergy   float64 `json:"year_energy"`
	TotalEnergy  float64 `json:"total_energy"`
	Status       int     `json:"status"`
}

func (a *growattAdapter) ListPlants(ctx context.Context) ([]core.Plant, error) {
	var plants []core.Plant

	for page := 1; ; page++ {
		var out struct {
			growattEnvelope
			Data struct {
				Count  int            `json:"count"`
				Plants []growattPlant `json:"plants"`
			} `json:"data"`
		}

		params := map[string]string{
			"page":    fmt.Sprintf("%d", page),
			"perpage": "100",
		}
		if err := a.get(ctx, "/v1/plant/list", params, &out); err != nil {
			return nil, err
		}
		if out.ErrorCode != 0 {
			return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("error %d: %s", out.ErrorCode, out.ErrorMsg)}
		}

		for _, raw := range out.Data.Plants {
			plants = append(plants, a.normalize(raw))
		}

		if len(out.Data.Plants) == 0 || len(plants) >= out.Data.Count {
			break
		}
	}

	return plants, nil
}

func (a *growattAdapter) normalize(raw growattPlant) core.Plant {
	p := core.Plant{
		VendorPlantID:  fmt.Sprintf("%d", raw.PlantID),
		Name:           raw.Name,
		CapacityKw:     raw.PeakPower,
		Address:        raw.City,
		CurrentPowerKw: raw.CurrentPower,
		EnergyTodayKwh: raw.TodayEnergy,
		EnergyMonthKwh: raw.MonthEnergy,
		EnergyYearKwh:  raw.YearEnergy,
		EnergyTotalKwh: raw.TotalEnergy,
		Online:         raw.Status == 1,
	}
	p.Latitude = parseCoord(raw.Latitude)
	p.Longitude = parseCoord(raw.Longitude)
	return p
}

func parseCoord(s *string) *float64 {
	if s == nil || *s == "" {
		return nil
	}
	var v float64
	if _, err := fmt.Sscanf(*s, "%f", &v); err != nil {
		return nil
	}
	return &v
}

// GetPlant has no single-plant endpoint on this API; it filters the full
// listing instead.
func (a *growattAdapter) GetPlant(ctx context.Context, vendorPlantID string) (*core.Plant, error) {
	plants, err := a.ListPlants(ctx)
	if err != nil {
		return nil, err
	}
	for i := range plants {
		if plants[i].VendorPlantID == vendorPlantID {
			return &plants[i], nil
		}
	}
	return nil, nil
}

// GetAlerts: the vendor exposes fault logs without a stable alert id, so
// VendorAlertID stays nil and downstream dedup uses the (plant, title,
// day) fallback.
func (a *growattAdapter) GetAlerts(ctx context.Context, vendorPlantID string) ([]core.Alert, error) {
	var out struct {
		growattEnvelope
		Data struct {
			Faults []struct {
				DeviceSN string `json:"device_sn"`
				Fault    string `json:"fault"`
				Solution string `json:"solution"`
				Level    int    `json:"level"`
				Time     string `json:"time"`
			} `json:"faults"`
		} `json:"data"`
	}

	params := map[string]string{"plant_id": vendorPlantID}
	if err := a.get(ctx, "/v1/fault/list", params, &out); err != nil {
		return nil, err
	}
	if out.ErrorCode != 0 {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("error %d: %s", out.ErrorCode, out.ErrorMsg)}
	}

	alerts := make([]core.Alert, 0, len(out.Data.Faults))
	for _, raw := range out.Data.Faults {
		startedAt, err := time.Parse("2006-01-02 15:04:05", raw.Time)
		if err != nil {
			// No usable occurrence time; fall back to fetch time so the
			// daily dedup window still works.
			startedAt = time.Now()
		}
		alerts = append(alerts, core.Alert{
			VendorPlantID: vendorPlantID,
			Title:         fmt.Sprintf("%s (%s)", raw.Fault, raw.DeviceSN),
			Description:   raw.Solution,
			Severity:      growattSeverity(raw.Level),
			StartedAt:     startedAt,
		})
	}
	return alerts, nil
}

func growattSeverity(level int) core.Severity {
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

// GetTelemetry is not exposed by this vendor's open API.
func (a *growattAdapter) GetTelemetry(ctx context.Context, vendorPlantID string, day time.Time) ([]core.Reading, error) {
	return nil, ErrUnsupported
}

// GetRealtime is not exposed by this vendor's open API.
func (a *growattAdapter) GetRealtime(ctx context.Context, vendorPlantID string) (*core.Realtime, error) {
	return nil, ErrUnsupported
}
