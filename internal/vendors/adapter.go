package vendors

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/tokencache"
)

// tokenExpiryBuffer is the safety margin before a cached token's expiry
// within which it is treated as already expired.
const tokenExpiryBuffer = 5 * time.Minute

// Adapter is the capability set over one vendor account. Optional
// operations return ErrUnsupported when the vendor's API cannot serve
// them; that is a documented capability gap, not a defect.
//
// Adapters are safe for concurrent use: token state lives in the shared
// per-vendor cache and re-authentication is idempotent with respect to it.
type Adapter interface {
	// Authenticate returns a cached token when it is still outside the
	// expiry buffer, otherwise performs a vendor login and stores the
	// refreshed token.
	Authenticate(ctx context.Context) (*tokencache.Token, error)

	// ListPlants fetches and normalizes every plant visible under the
	// vendor credentials, following pagination to the end.
	ListPlants(ctx context.Context) ([]core.Plant, error)

	// GetPlant is the lightweight single-plant lookup used by the
	// telemetry refresh. Returns (nil, nil) when the vendor knows no such
	// plant, ErrUnsupported when only full listings exist.
	GetPlant(ctx context.Context, vendorPlantID string) (*core.Plant, error)

	// GetAlerts fetches active/new alerts for one plant.
	GetAlerts(ctx context.Context, vendorPlantID string) ([]core.Alert, error)

	// GetTelemetry fetches time-series readings for one plant and day.
	GetTelemetry(ctx context.Context, vendorPlantID string, day time.Time) ([]core.Reading, error)

	// GetRealtime fetches a point-in-time production snapshot.
	GetRealtime(ctx context.Context, vendorPlantID string) (*core.Realtime, error)
}

// Factory builds an adapter for a vendor record.
type Factory func(v *db.Vendor, tokens tokencache.Store, logger *zap.Logger) (Adapter, error)

// New constructs the adapter matching the vendor's type, validating the
// credential bag against that type's required fields before any network
// call is attempted.
func New(v *db.Vendor, tokens tokencache.Store, logger *zap.Logger) (Adapter, error) {
	logger = logger.With(zap.String("vendor", v.Name), zap.String("vendor_type", string(v.Type)))

	switch v.Type {
	case db.VendorTypeSolarman:
		return newSolarman(v, tokens, logger)
	case db.VendorTypeFoxESS:
		return newFoxESS(v, tokens, logger)
	case db.VendorTypeKstar:
		return newKstar(v, tokens, logger)
	case db.VendorTypeHuawei:
		return newHuawei(v, tokens, logger)
	case db.VendorTypeGrowatt:
		return newGrowatt(v, tokens, logger)
	default:
		return nil, fmt.Errorf("unknown vendor type %q", v.Type)
	}
}

// requireCreds fails fast with an AuthError when the credential bag is
// missing any of the vendor type's required keys.
func requireCreds(v *db.Vendor, keys ...string) error {
	for _, k := range keys {
		if v.Credentials[k] == "" {
			return &AuthError{
				Vendor: v.Name,
				Reason: fmt.Sprintf("missing credential field %q for vendor type %s", k, v.Type),
			}
		}
	}
	return nil
}

// cachedOrLogin implements the shared token lifecycle: a CachedValid read
// never touches the network; a cache miss or buffer breach triggers login,
// and the refreshed token supersedes the cache entry. A cache read error
// is treated as a miss so a flaky cache cannot block authentication.
func cachedOrLogin(ctx context.Context, vendorID string, tokens tokencache.Store, logger *zap.Logger, login func(ctx context.Context) (*tokencache.Token, error)) (*tokencache.Token, error) {
	cached, err := tokens.Get(ctx, vendorID)
	if err != nil {
		logger.Warn("Token cache read failed, re-authenticating", zap.Error(err))
	}
	if cached.ValidFor(tokenExpiryBuffer) {
		return cached, nil
	}

	tok, err := login(ctx)
	if err != nil {
		return nil, err
	}

	if err := tokens.Put(ctx, vendorID, tok); err != nil {
		// The token itself is good; a cache write failure only costs an
		// extra login next time.
		logger.Warn("Failed to cache refreshed token", zap.Error(err))
	}
	return tok, nil
}
