package vendors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/tokencache"
)

// kstarSalt is the fixed salt the vendor prescribes for both the login
// credential hash and the per-request signature.
const kstarSalt = "KSTAR_SOLAR"

// kstarAdapter talks to the KStar monitoring API. Login exchanges a
// salted, hashed credential for a (token, secret) pair. The secret never
// travels on the wire again; every call instead carries a freshly
// computed signature over the canonicalized query.
type kstarAdapter struct {
	vendor *db.Vendor
	tokens tokencache.Store
	client *resty.Client
	logger *zap.Logger
}

func newKstar(v *db.Vendor, tokens tokencache.Store, logger *zap.Logger) (*kstarAdapter, error) {
	if err := requireCreds(v, "user_code", "password"); err != nil {
		return nil, err
	}

	return &kstarAdapter{
		vendor: v,
		tokens: tokens,
		client: newClient(v.BaseURL, rate.NewLimiter(rate.Limit(3), 6)),
		logger: logger,
	}, nil
}

type kstarEnvelope struct {
	Code int    `json:"code"`
	Desc string `json:"desc"`
}

func (a *kstarAdapter) Authenticate(ctx context.Context) (*tokencache.Token, error) {
	return cachedOrLogin(ctx, a.vendor.ID, a.tokens, a.logger, a.login)
}

func (a *kstarAdapter) login(ctx context.Context) (*tokencache.Token, error) {
	credHash := sha256.Sum256([]byte(kstarSalt + a.vendor.Credentials["password"]))

	var out struct {
		kstarEnvelope
		Data struct {
			Token     string `json:"token"`
			Secret    string `json:"secret"`
			ExpiresIn int64  `json:"expiresIn"`
		} `json:"data"`
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"userCode": a.vendor.Credentials["user_code"],
			"password": hex.EncodeToString(credHash[:]),
		}).
		SetResult(&out).
		Post("/public/login")
	if err != nil {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: "login request failed", Err: err}
	}
	if resp.IsError() {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: fmt.Sprintf("login rejected (HTTP %d)", resp.StatusCode())}
	}
	if out.Code != 0 || out.Data.Token == "" || out.Data.Secret == "" {
		return nil, &AuthError{Vendor: a.vendor.Name, Reason: fmt.Sprintf("login rejected: code %d %s", out.Code, out.Desc)}
	}

	expiresIn := out.Data.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int64((2 * time.Hour).Seconds())
	}

	return &tokencache.Token{
		AccessToken: out.Data.Token,
		ExpiresAt:   time.Now().Add(time.Duration(expiresIn) * time.Second),
		Meta:        map[string]string{"secret": out.Data.Secret},
	}, nil
}

// sign computes the per-request signature the vendor verifies:
// sha256(salt + secret + token + canonicalized query).
func kstarSign(secret, token string, params url.Values) string {
	sum := sha256.Sum256([]byte(kstarSalt + secret + token + canonicalizeQuery(params)))
	return hex.EncodeToString(sum[:])
}

func (a *kstarAdapter) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	tok, err := a.Authenticate(ctx)
	if err != nil {
		return err
	}
	secret := tok.Meta["secret"]
	if secret == "" {
		return &AuthError{Vendor: a.vendor.Name, Reason: "cached token has no signing secret"}
	}

	req := a.client.R().
		SetContext(ctx).
		SetHeader("token", tok.AccessToken).
		SetHeader("sign", kstarSign(secret, tok.AccessToken, params)).
		SetResult(out)
	for k, vs := range params {
		for _, v := range vs {
			req.SetQueryParam(k, v)
		}
	}

	resp, err := req.Get(path)
	if err != nil {
		return &UpstreamError{Vendor: a.vendor.Name, Message: "request failed", Err: err}
	}
	if resp.IsError() {
		return &UpstreamError{Vendor: a.vendor.Name, Status: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

type kstarStation struct {
	PowerPlantID   string   `json:"powerPlantId"`
	PowerPlantName string   `json:"powerPlantName"`
	InstalledPower float64  `json:"installedPower"`
	Longitude      *float64 `json:"longitude"`
	Latitude       *float64 `json:"latitude"`
	Address        *string  `json:"address"`
	NowPower       float64  `json:"nowPower"`
	DayGeneration  float64  `json:"dayGeneration"`
	MonGeneration  float64  `json:"monGeneration"`
	YearGeneration float64  `json:"yearGeneration"`
	SumGeneration  float64  `json:"sumGeneration"`
	Status         int      `json:"status"`
	UpdateTime     string   `json:"updateTime"`
}

func (a *kstarAdapter) normalize(s kstarStation) core.Plant {
	p := core.Plant{
		VendorPlantID:  s.PowerPlantID,
		Name:           s.PowerPlantName,
		CapacityKw:     s.InstalledPower,
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		Address:        s.Address,
		CurrentPowerKw: s.NowPower,
		EnergyTodayKwh: s.DayGeneration,
		EnergyMonthKwh: s.MonGeneration,
		EnergyYearKwh:  s.YearGeneration,
		EnergyTotalKwh: s.SumGeneration,
		Online:         s.Status == 1,
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s.UpdateTime); err == nil {
		p.LastVendorPush = &t
	}
	return p
}

func (a *kstarAdapter) ListPlants(ctx context.Context) ([]core.Plant, error) {
	var plants []core.Plant

	for page := 1; ; page++ {
		var out struct {
			kstarEnvelope
			Data struct {
				Count int            `json:"count"`
				List  []kstarStation `json:"list"`
			} `json:"data"`
		}

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("size", "100")
		if err := a.get(ctx, "/power/info", params, &out); err != nil {
			return nil, err
		}
		if out.Code != 0 {
			return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("code %d: %s", out.Code, out.Desc)}
		}

		for _, s := range out.Data.List {
			plants = append(plants, a.normalize(s))
		}

		if len(out.Data.List) == 0 || len(plants) >= out.Data.Count {
			break
		}
	}

	return plants, nil
}

func (a *kstarAdapter) GetPlant(ctx context.Context, vendorPlantID string) (*core.Plant, error) {
	var out struct {
		kstarEnvelope
		Data *kstarStation `json:"data"`
	}

	params := url.Values{}
	params.Set("powerPlantId", vendorPlantID)
	if err := a.get(ctx, "/power/detail", params, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 || out.Data == nil {
		return nil, nil
	}

	p := a.normalize(*out.Data)
	return &p, nil
}

// GetAlerts is not exposed by this vendor's API.
func (a *kstarAdapter) GetAlerts(ctx context.Context, vendorPlantID string) ([]core.Alert, error) {
	return nil, ErrUnsupported
}

func (a *kstarAdapter) GetTelemetry(ctx context.Context, vendorPlantID string, day time.Time) ([]core.Reading, error) {
	var out struct {
		kstarEnvelope
		Data []struct {
			Time       string  `json:"time"`
			Power      float64 `json:"power"`
			Generation float64 `json:"generation"`
		} `json:"data"`
	}

	params := url.Values{}
	params.Set("powerPlantId", vendorPlantID)
	params.Set("date", day.Format("2006-01-02"))
	if err := a.get(ctx, "/power/history", params, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &UpstreamError{Vendor: a.vendor.Name, Message: fmt.Sprintf("code %d: %s", out.Code, out.Desc)}
	}

	readings := make([]core.Reading, 0, len(out.Data))
	for _, item := range out.Data {
		t, err := time.Parse("2006-01-02 15:04:05", item.Time)
		if err != nil {
			continue
		}
		readings = append(readings, core.Reading{
			TakenAt:   t,
			PowerKw:   item.Power,
			EnergyKwh: item.Generation,
		})
	}
	return readings, nil
}

// GetRealtime is not exposed by this vendor's API.
func (a *kstarAdapter) GetRealtime(ctx context.Context, vendorPlantID string) (*core.Realtime, error) {
	return nil, ErrUnsupported
}
