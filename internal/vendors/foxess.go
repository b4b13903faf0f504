package vendors

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/tokencache"
)

// foxessAdapter talks to the FoxESS cloud API. Login yields a JWT whose
// lifetime the vendor does not state explicitly; the expiry is decoded
// from the token's exp claim instead.
type foxessAdapter struct {
	vendor *db.Vendor
	tokens tokencache.Store
	client *resty.Client
	logger *zap.Logger
}

func newFoxESS(v *db.Vendor, tokens tokencache.Store, logger *zap.Logger) (*foxessAdapter, error) {
	if err := requireCreds(v, "username", "password"); err != nil {
		return nil, err
	}

	return &foxessAdapter{
		vendor: v,
		tokens: tokens,
		client: newClient(v.BaseURL, rate.NewLimiter(rate.Limit(2), 5)),
		logger: logger,
	}, nil
}

type foxessEnvelope struct {
	Errno int    `json:"errno"`
	Msg   string `json:"msg"`
}

func (a *foxessAdapter) Authenticate(ctx context.Context) (*tokencache.Token, error) {
	return cachedOrLogin(ctx, a.vendor.ID, a.tokens, a.logger, a.login)
}

func (a *foxessAdapter) login(ctx context.Context) (*tokencache.Token, error) {
	passwordHash := md5.Sum([]byte(a.vendor.Credentials["password"]))

	var out struct {
		foxessEnvelope
		Result struct {
			Token string `json:"token"`
		} `json:"result"`
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"user":     a.vendor.Credentials["username"],
			"password": hex.EncodeToString(passwordHash[:]),
		}).
		SetResult(&out).
		Post("/c/v0/user/login")
	if err != nil {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: "login request failed", Err: err}
	}
	if resp.IsError() {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: fmt.Sprintf("login rejected (HTTP %d)", resp.StatusCode())}
	}
	if out.Errno != 0 || out.Result.Token == "" {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: fmt.Sprintf("login rejected: errno %d %s", out.Errno, out.Msg)}
	}

	return &tokencache.Token{
		AccessToken: out.Result.Token,
		ExpiresAt:   tokenExpiry(out.Result.Token),
	}, nil
}

// tokenExpiry pulls the exp claim out of a JWT without verifying the
// signature (we are the party the token was issued to). Opaque tokens get
// a conservative one-hour lifetime.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(time.Hour)
}

func (a *foxessAdapter) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	tok, err := a.Authenticate(ctx)
	if err != nil {
		return err
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("token", tok.AccessToken).
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

type foxessPlant struct {
	StationID  string   `json:"stationID"`
	Name       string   `json:"name"`
	CapacityKw float64  `json:"capacity"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Address    *string  `json:"address"`
	PowerKw    float64  `json:"power"`
	TodayKwh   float64  `json:"todayGeneration"`
	MonthKwh   float64  `json:"monthGeneration"`
	YearKwh    float64  `json:"yearGeneration"`
	TotalKwh   float64  `json:"cumulativeGeneration"`
	Online     bool     `json:"online"`
	LastReport int64    `json:"lastReportTime"`
}

func (a *foxessAdapter) ListPlants(ctx context.Context) ([]core.Plant, error) {
	var plants []core.Plant

	for page := 1; ; page++ {
		var out struct {
			foxessEnvelope
			Result struct {
				Total int           `json:"total"`
				Data  []foxessPlant `json:"data"`
			} `json:"result"`
		}

		body := map[string]int{"currentPage": page, "pageSize": 50}
		if err := a.post(ctx, "/c/v0/plant/list", body, &out); err != nil {
			return nil, err
		}
		if out.Errno != 0 {
			return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("errno %d: %s", out.Errno, out.Msg)}
		}

		for _, raw := range out.Result.Data {
			p := core.Plant{
				VendorPlantID:  raw.StationID,
				Name:           raw.Name,
				CapacityKw:     raw.CapacityKw,
				Latitude:       raw.Latitude,
				Longitude:      raw.Longitude,
				Address:        raw.Address,
				CurrentPowerKw: raw.PowerKw,
				EnergyTodayKwh: raw.TodayKwh,
				EnergyMonthKwh: raw.MonthKwh,
				EnergyYearKwh:  raw.YearKwh,
				EnergyTotalKwh: raw.TotalKwh,
				Online:         raw.Online,
			}
			if raw.LastReport > 0 {
				t := time.Unix(raw.LastReport, 0)
				p.LastVendorPush = &t
			}
			plants = append(plants, p)
		}

		if len(out.Result.Data) == 0 || len(plants) >= out.Result.Total {
			break
		}
	}

	return plants, nil
}

// GetPlant has no single-station endpoint on this API; it filters the
// full listing instead.
func (a *foxessAdapter) GetPlant(ctx context.Context, vendorPlantID string) (*core.Plant, error) {
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

func (a *foxessAdapter) GetAlerts(ctx context.Context, vendorPlantID string) ([]core.Alert, error) {
	var out struct {
		foxessEnvelope
		Result struct {
			Alarms []struct {
				AlarmID     string `json:"alarmID"`
				Title       string `json:"title"`
				Description string `json:"description"`
				Level       string `json:"level"`
				BeginTime   int64  `json:"beginTime"`
				EndTime     int64  `json:"endTime"`
			} `json:"alarms"`
		} `json:"result"`
	}

	body := map[string]string{"stationID": vendorPlantID}
	if err := a.post(ctx, "/c/v0/alarm/list", body, &out); err != nil {
		return nil, err
	}
	if out.Errno != 0 {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("errno %d: %s", out.Errno, out.Msg)}
	}

	alerts := make([]core.Alert, 0, len(out.Result.Alarms))
	for _, raw := range out.Result.Alarms {
		id := raw.AlarmID
		alert := core.Alert{
			VendorAlertID: &id,
			VendorPlantID: vendorPlantID,
			Title:         raw.Title,
			Description:   raw.Description,
			Severity:      foxessSeverity(raw.Level),
			StartedAt:     time.Unix(raw.BeginTime, 0),
		}
		if raw.EndTime > 0 {
			t := time.Unix(raw.EndTime, 0)
			alert.EndedAt = &t
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func foxessSeverity(level string) core.Severity {
	switch level {
	case "critical":
		return core.SeverityCritical
	case "major":
		return core.SeverityHigh
	case "minor":
		return core.SeverityMedium
	default:
		return core.SeverityLow
	}
}

// GetTelemetry is not exposed by this vendor's open API.
func (a *foxessAdapter) GetTelemetry(ctx context.Context, vendorPlantID string, day time.Time) ([]core.Reading, error) {
	return nil, ErrUnsupported
}

func (a *foxessAdapter) GetRealtime(ctx context.Context, vendorPlantID string) (*core.Realtime, error) {
	var out struct {
		foxessEnvelope
		Result struct {
			Power      float64 `json:"power"`
			Online     bool    `json:"online"`
			ReportTime int64   `json:"reportTime"`
		} `json:"result"`
	}

	body := map[string]string{"stationID": vendorPlantID}
	if err := a.post(ctx, "/c/v0/plant/real", body, &out); err != nil {
		return nil, err
	}
	if out.Errno != 0 {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("errno %d: %s", out.Errno, out.Msg)}
	}

	return &core.Realtime{
		TakenAt: time.Unix(out.Result.ReportTime, 0),
		PowerKw: out.Result.Power,
		Online:  out.Result.Online,
	}, nil
}
