package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sunwatch/solarsync/internal/config"
	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/metrics"
	"github.com/sunwatch/solarsync/internal/tokencache"
	"github.com/sunwatch/solarsync/internal/vendors"
	"go.uber.org/zap"
)

// One collector per test binary; promauto metrics register globally.
var testCollector = metrics.NewCollector(config.MimirConfig{})

func testConfig() *config.SyncConfig {
	return &config.SyncConfig{
		VendorWindow: 10,
		PlantWindow:  20,
		Timezone:     "UTC",
	}
}

func testVendor(i int) *db.Vendor {
	return &db.Vendor{
		ID:     fmt.Sprintf("vendor-%02d", i),
		OrgID:  "org-1",
		Name:   fmt.Sprintf("Vendor %02d", i),
		Type:   db.VendorTypeSolarman,
		Active: true,
	}
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu         sync.Mutex
	vendors    []*db.Vendor
	plants     map[string]*db.Plant // vendor_id|vendor_plant_id
	alerts     []*db.Alert
	readings   []*db.Reading
	lastSynced map[string]time.Time

	createPlantErr error
	batchUpdateErr error
}

func newFakeStore(vendors ...*db.Vendor) *fakeStore {
	return &fakeStore{
		vendors:    vendors,
		plants:     make(map[string]*db.Plant),
		lastSynced: make(map[string]time.Time),
	}
}

func plantKey(vendorID, vendorPlantID string) string {
	return vendorID + "|" + vendorPlantID
}

func (s *fakeStore) GetActiveVendors() ([]*db.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*db.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		if v.Active {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateVendorLastSynced(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSynced[id] = at
	return nil
}

func (s *fakeStore) GetPlantsByVendor(vendorID string) ([]*db.Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*db.Plant{}
	for _, p := range s.plants {
		if p.VendorID == vendorID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) GetPlantByVendorPlant(vendorID, vendorPlantID string) (*db.Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.plants[plantKey(vendorID, vendorPlantID)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) CreatePlant(p *db.Plant) error {
	if s.createPlantErr != nil {
		return s.createPlantErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := plantKey(p.VendorID, p.VendorPlantID)
	if _, exists := s.plants[key]; exists {
		return fmt.Errorf("unique violation on (vendor_id, vendor_plant_id)")
	}
	cp := *p
	s.plants[key] = &cp
	return nil
}

func (s *fakeStore) UpdatePlant(p *db.Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.plants[plantKey(p.VendorID, p.VendorPlantID)] = &cp
	return nil
}

func (s *fakeStore) BatchUpdatePlants(plants []*db.Plant) error {
	if s.batchUpdateErr != nil {
		return s.batchUpdateErr
	}
	for _, p := range plants {
		if err := s.UpdatePlant(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) FindAlert(vendorID, vendorPlantID, vendorAlertID string) (*db.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.VendorID == vendorID && a.VendorPlantID == vendorPlantID &&
			a.VendorAlertID != nil && *a.VendorAlertID == vendorAlertID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindAlertByPlantTitleDay(plantID, title string, day time.Time) (*db.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.PlantID == plantID && a.Title == title &&
			a.AlertAt.YearDay() == day.YearDay() && a.AlertAt.Year() == day.Year() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateAlert(a *db.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.alerts {
		if existing.ID == a.ID {
			cp := *a
			s.alerts[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("alert not found")
}

func (s *fakeStore) BatchCreateAlerts(alerts []*db.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range alerts {
		cp := *a
		s.alerts = append(s.alerts, &cp)
	}
	return nil
}

func (s *fakeStore) BatchCreateReadings(readings []*db.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, readings...)
	return nil
}

// fakeAdapter implements vendors.Adapter with pluggable behavior.
type fakeAdapter struct {
	plants    []core.Plant
	alerts    map[string][]core.Alert
	telemetry map[string][]core.Reading
	listErr   error
	listDelay time.Duration

	getPlantErr  error
	telemetryErr error
	alertsErr    error

	listCalls int32
	inFlight  *int32
	maxSeen   *int32
}

func (a *fakeAdapter) Authenticate(ctx context.Context) (*tokencache.Token, error) {
	return &tokencache.Token{AccessToken: "fake"}, nil
}

func (a *fakeAdapter) ListPlants(ctx context.Context) ([]core.Plant, error) {
	atomic.AddInt32(&a.listCalls, 1)

	if a.inFlight != nil {
		n := atomic.AddInt32(a.inFlight, 1)
		for {
			max := atomic.LoadInt32(a.maxSeen)
			if n <= max || atomic.CompareAndSwapInt32(a.maxSeen, max, n) {
				break
			}
		}
		defer atomic.AddInt32(a.inFlight, -1)
	}
	if a.listDelay > 0 {
		time.Sleep(a.listDelay)
	}

	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.plants, nil
}

func (a *fakeAdapter) GetPlant(ctx context.Context, vendorPlantID string) (*core.Plant, error) {
	if a.getPlantErr != nil {
		return nil, a.getPlantErr
	}
	for i := range a.plants {
		if a.plants[i].VendorPlantID == vendorPlantID {
			return &a.plants[i], nil
		}
	}
	return nil, nil
}

func (a *fakeAdapter) GetAlerts(ctx context.Context, vendorPlantID string) ([]core.Alert, error) {
	if a.alertsErr != nil {
		return nil, a.alertsErr
	}
	return a.alerts[vendorPlantID], nil
}

func (a *fakeAdapter) GetTelemetry(ctx context.Context, vendorPlantID string, day time.Time) ([]core.Reading, error) {
	if a.telemetryErr != nil {
		return nil, a.telemetryErr
	}
	if a.telemetry != nil {
		return a.telemetry[vendorPlantID], nil
	}
	return nil, vendors.ErrUnsupported
}

func (a *fakeAdapter) GetRealtime(ctx context.Context, vendorPlantID string) (*core.Realtime, error) {
	return nil, vendors.ErrUnsupported
}

func somePlants(n int) []core.Plant {
	plants := make([]core.Plant, n)
	for i := range plants {
		plants[i] = core.Plant{
			VendorPlantID:  fmt.Sprintf("sp-%03d", i),
			Name:           fmt.Sprintf("Site %03d", i),
			CapacityKw:     100,
			CurrentPowerKw: 42.5,
			EnergyTodayKwh: 310,
			Online:         true,
		}
	}
	return plants
}

func seedPlants(store *fakeStore, v *db.Vendor, plants []core.Plant) {
	now := time.Now()
	for _, in := range plants {
		store.plants[plantKey(v.ID, in.VendorPlantID)] = newPlant(v, in, now)
	}
}

func newTestOrchestrator(store Store, factory AdapterFactory) *Orchestrator {
	return NewOrchestrator(store, factory, testCollector, zap.NewNop(), testConfig())
}
