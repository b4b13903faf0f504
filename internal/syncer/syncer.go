package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/config"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/metrics"
	"github.com/sunwatch/solarsync/internal/vendors"
)

// Store is the persistence surface the pipelines consume. *db.Repository
// satisfies it; tests swap in fakes.
type Store interface {
	GetActiveVendors() ([]*db.Vendor, error)
	UpdateVendorLastSynced(id string, at time.Time) error

	GetPlantsByVendor(vendorID string) ([]*db.Plant, error)
	GetPlantByVendorPlant(vendorID, vendorPlantID string) (*db.Plant, error)
	CreatePlant(p *db.Plant) error
	UpdatePlant(p *db.Plant) error
	BatchUpdatePlants(plants []*db.Plant) error

	FindAlert(vendorID, vendorPlantID, vendorAlertID string) (*db.Alert, error)
	FindAlertByPlantTitleDay(plantID, title string, day time.Time) (*db.Alert, error)
	UpdateAlert(a *db.Alert) error
	BatchCreateAlerts(alerts []*db.Alert) error

	BatchCreateReadings(readings []*db.Reading) error
}

// AdapterFactory builds the adapter for one vendor record.
type AdapterFactory func(v *db.Vendor) (vendors.Adapter, error)

// VendorResult is one vendor's outcome within a pipeline run.
type VendorResult struct {
	VendorID   string `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
	OrgID      string `json:"org_id"`
	Success    bool   `json:"success"`
	Synced     int    `json:"synced"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// Summary aggregates a whole pipeline run. Results are appended in window
// order: vendors inside one window finish in no particular order, windows
// themselves run strictly one after another.
type Summary struct {
	Pipeline     string         `json:"pipeline"`
	TotalVendors int            `json:"total_vendors"`
	Successful   int            `json:"successful"`
	Failed       int            `json:"failed"`
	Synced       int            `json:"synced"`
	Created      int            `json:"created"`
	Updated      int            `json:"updated"`
	Skipped      int            `json:"skipped"`
	StartedAt    time.Time      `json:"started_at"`
	Duration     time.Duration  `json:"duration"`
	Results      []VendorResult `json:"results"`
}

type Orchestrator struct {
	store    Store
	adapters AdapterFactory
	metrics  *metrics.Collector
	logger   *zap.Logger
	config   *config.SyncConfig
}

func NewOrchestrator(store Store, adapters AdapterFactory, collector *metrics.Collector, logger *zap.Logger, cfg *config.SyncConfig) *Orchestrator {
	return &Orchestrator{
		store:    store,
		adapters: adapters,
		metrics:  collector,
		logger:   logger,
		config:   cfg,
	}
}

// run executes fn once per active vendor inside fixed-size concurrency
// windows and aggregates the per-vendor results. An error (or panic) in
// one vendor's task lands in that vendor's result only; siblings and the
// summary are unaffected. A non-nil error is returned alongside the
// summary when any vendor failed, so the scheduler records a non-success
// outcome while everything that succeeded stays persisted.
func (o *Orchestrator) run(ctx context.Context, pipeline string, fn func(ctx context.Context, v *db.Vendor) VendorResult) (*Summary, error) {
	start := time.Now()

	active, err := o.store.GetActiveVendors()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate active vendors: %w", err)
	}

	summary := &Summary{
		Pipeline:     pipeline,
		TotalVendors: len(active),
		StartedAt:    start,
	}

	window := o.config.VendorWindow
	if window <= 0 {
		window = 10
	}

	for ws := 0; ws < len(active); ws += window {
		we := ws + window
		if we > len(active) {
			we = len(active)
		}
		batch := active[ws:we]

		results := make([]VendorResult, len(batch))
		var wg sync.WaitGroup
		for i, v := range batch {
			wg.Add(1)
			go func(i int, v *db.Vendor) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						results[i] = VendorResult{
							VendorID:   v.ID,
							VendorName: v.Name,
							OrgID:      v.OrgID,
							Error:      fmt.Sprintf("panic: %v", r),
						}
					}
				}()
				results[i] = fn(ctx, v)
			}(i, v)
		}
		wg.Wait()

		for _, r := range results {
			summary.Results = append(summary.Results, r)
			if r.Success {
				summary.Successful++
			} else {
				summary.Failed++
			}
			summary.Synced += r.Synced
			summary.Created += r.Created
			summary.Updated += r.Updated
			summary.Skipped += r.Skipped

			o.metrics.RecordVendorSync(pipeline, r.VendorName, r.OrgID, r.Success)
		}
	}

	summary.Duration = time.Since(start)
	o.metrics.RecordRun(pipeline, summary.Failed, summary.Duration)

	o.logger.Info("Sync pipeline completed",
		zap.String("pipeline", pipeline),
		zap.Int("vendors", summary.TotalVendors),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%s sync: %d of %d vendors failed", pipeline, summary.Failed, summary.TotalVendors)
	}
	return summary, nil
}

func failedResult(v *db.Vendor, err error) VendorResult {
	return VendorResult{
		VendorID:   v.ID,
		VendorName: v.Name,
		OrgID:      v.OrgID,
		Error:      err.Error(),
	}
}
