package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sunwatch/solarsync/internal/config"
)

type Collector struct {
	config *config.MimirConfig

	// Pipeline-level metrics
	syncRuns     *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	lastSyncTime *prometheus.GaugeVec

	// Per-vendor metrics
	vendorSyncs    *prometheus.CounterVec
	plantsCreated  *prometheus.CounterVec
	plantsUpdated  *prometheus.CounterVec
	alertsCreated  *prometheus.CounterVec
	alertsSkipped  *prometheus.CounterVec
	readingsStored *prometheus.CounterVec
	tokenRefreshes *prometheus.CounterVec

	// Persistence metrics
	batchFallbacks *prometheus.CounterVec
}

func NewCollector(cfg config.MimirConfig) *Collector {
	return &Collector{
		config: &cfg,

		syncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_runs_total",
			Help: "Completed sync pipeline runs by outcome",
		}, []string{"pipeline", "outcome"}),

		syncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solarsync_run_duration_seconds",
			Help:    "Wall time of a full pipeline run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"pipeline"}),

		lastSyncTime: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solarsync_last_run_timestamp_seconds",
			Help: "Unix time of the last completed pipeline run",
		}, []string{"pipeline"}),

		vendorSyncs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_vendor_syncs_total",
			Help: "Per-vendor sync attempts by outcome",
		}, []string{"pipeline", "vendor", "org_id", "outcome"}),

		plantsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_plants_created_total",
			Help: "Plants inserted on first sync appearance",
		}, []string{"vendor", "org_id"}),

		plantsUpdated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_plants_updated_total",
			Help: "Plants whose production snapshot was refreshed",
		}, []string{"vendor", "org_id"}),

		alertsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_alerts_created_total",
			Help: "New alert occurrences persisted",
		}, []string{"vendor", "org_id"}),

		alertsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_alerts_skipped_total",
			Help: "Alerts dropped as duplicates of a stored occurrence",
		}, []string{"vendor", "org_id"}),

		readingsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_readings_stored_total",
			Help: "Telemetry samples persisted",
		}, []string{"vendor", "org_id"}),

		tokenRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_token_refreshes_total",
			Help: "Vendor logins performed on cache miss or expiry",
		}, []string{"vendor"}),

		batchFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsync_batch_fallbacks_total",
			Help: "Write chunks that fell back to per-item writes",
		}, []string{"entity"}),
	}
}

func (c *Collector) RecordRun(pipeline string, failed int, duration time.Duration) {
	outcome := "success"
	if failed > 0 {
		outcome = "partial_failure"
	}
	c.syncRuns.WithLabelValues(pipeline, outcome).Inc()
	c.syncDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	c.lastSyncTime.WithLabelValues(pipeline).SetToCurrentTime()
}

func (c *Collector) RecordVendorSync(pipeline, vendor, orgID string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.vendorSyncs.WithLabelValues(pipeline, vendor, orgID, outcome).Inc()
}

func (c *Collector) RecordPlants(vendor, orgID string, created, updated int) {
	c.plantsCreated.WithLabelValues(vendor, orgID).Add(float64(created))
	c.plantsUpdated.WithLabelValues(vendor, orgID).Add(float64(updated))
}

func (c *Collector) RecordAlerts(vendor, orgID string, created, skipped int) {
	c.alertsCreated.WithLabelValues(vendor, orgID).Add(float64(created))
	c.alertsSkipped.WithLabelValues(vendor, orgID).Add(float64(skipped))
}

func (c *Collector) RecordReadings(vendor, orgID string, stored int) {
	c.readingsStored.WithLabelValues(vendor, orgID).Add(float64(stored))
}

func (c *Collector) RecordTokenRefresh(vendor string) {
	c.tokenRefreshes.WithLabelValues(vendor).Inc()
}

func (c *Collector) RecordBatchFallback(entity string) {
	c.batchFallbacks.WithLabelValues(entity).Inc()
}
