package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/benefit"
	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/vendors"
)

// SyncAlerts runs the alert pipeline: per active vendor, fetch each known
// plant's alerts, deduplicate against stored occurrences, and batch-create
// whatever is genuinely new in one call per vendor.
func (o *Orchestrator) SyncAlerts(ctx context.Context) (*Summary, error) {
	return o.run(ctx, "alerts", o.syncVendorAlerts)
}

func (o *Orchestrator) syncVendorAlerts(ctx context.Context, v *db.Vendor) VendorResult {
	logger := o.logger.With(zap.String("vendor", v.Name), zap.String("pipeline", "alerts"))

	adapter, err := o.adapters(v)
	if err != nil {
		return failedResult(v, err)
	}

	plants, err := o.store.GetPlantsByVendor(v.ID)
	if err != nil {
		return failedResult(v, err)
	}
	byVendorPlantID := make(map[string]*db.Plant, len(plants))
	for _, p := range plants {
		byVendorPlantID[p.VendorPlantID] = p
	}

	res := VendorResult{VendorID: v.ID, VendorName: v.Name, OrgID: v.OrgID}
	var fresh []*db.Alert

	for _, plant := range plants {
		incoming, err := adapter.GetAlerts(ctx, plant.VendorPlantID)
		if errors.Is(err, vendors.ErrUnsupported) {
			// Capability gap, not a failure; the vendor simply has no
			// alert feed.
			res.Success = true
			return res
		}
		if err != nil {
			// One plant's fetch failing must not abort the vendor.
			logger.Warn("Failed to fetch alerts for plant",
				zap.String("vendor_plant_id", plant.VendorPlantID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}

		for _, in := range incoming {
			target, ok := byVendorPlantID[in.VendorPlantID]
			if !ok {
				// Stale plant mapping; drop silently for this pass.
				logger.Debug("Dropping alert for unmapped plant",
					zap.String("vendor_plant_id", in.VendorPlantID),
				)
				continue
			}

			created, skipped, err := o.mergeAlert(v, target, in, &fresh)
			if err != nil {
				logger.Warn("Failed to merge alert", zap.Error(err))
				res.Failed++
				continue
			}
			res.Created += created
			res.Skipped += skipped
			if created == 0 && skipped == 0 {
				res.Updated++
			}
		}
	}

	if len(fresh) > 0 {
		if err := o.store.BatchCreateAlerts(fresh); err != nil {
			var batchErr *db.BatchError
			if errors.As(err, &batchErr) {
				o.metrics.RecordBatchFallback("alerts")
				res.Failed += len(batchErr.Items)
				res.Created -= len(batchErr.Items)
				logger.Warn("Batch alert create fell back with residual failures",
					zap.Int("failed_items", len(batchErr.Items)),
				)
			} else {
				logger.Error("Failed to persist alerts", zap.Error(err))
				res.Error = err.Error()
				return res
			}
		}
	}

	res.Synced = res.Created + res.Updated
	res.Success = true
	o.metrics.RecordAlerts(v.Name, v.OrgID, res.Created, res.Skipped)
	return res
}

// mergeAlert applies the dedup rules for one incoming alert. Vendors with
// a native alert id dedup on (vendor, vendor_plant_id, vendor_alert_id);
// the rest dedup on one occurrence per (plant, title, day). Returns how
// many alerts were queued for creation and how many were skipped.
func (o *Orchestrator) mergeAlert(v *db.Vendor, plant *db.Plant, in core.Alert, fresh *[]*db.Alert) (created, skipped int, err error) {
	var match *db.Alert
	if in.VendorAlertID != nil {
		match, err = o.store.FindAlert(v.ID, in.VendorPlantID, *in.VendorAlertID)
	} else {
		match, err = o.store.FindAlertByPlantTitleDay(plant.ID, in.Title, in.StartedAt)
	}
	if err != nil {
		return 0, 0, err
	}

	if match != nil {
		if match.AlertAt.Equal(in.StartedAt) {
			return 0, 1, nil
		}
		// Same occurrence, shifted time: refresh the mutable fields.
		// TTL and benefit stay as computed at insert.
		match.Title = in.Title
		match.Description = in.Description
		match.Severity = db.AlertSeverity(in.Severity)
		match.AlertAt = in.StartedAt
		match.EndedAt = in.EndedAt
		match.UpdatedAt = time.Now()
		if err := o.store.UpdateAlert(match); err != nil {
			return 0, 0, err
		}
		return 0, 0, nil
	}

	now := time.Now()
	alert := &db.Alert{
		ID:            uuid.New().String(),
		PlantID:       plant.ID,
		VendorID:      v.ID,
		VendorPlantID: in.VendorPlantID,
		VendorAlertID: in.VendorAlertID,
		Title:         in.Title,
		Description:   in.Description,
		Severity:      db.AlertSeverity(in.Severity),
		Status:        db.AlertStatusActive,
		AlertAt:       in.StartedAt,
		EndedAt:       in.EndedAt,
		ExpiresAt:     in.StartedAt.Add(db.AlertTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Grid-downtime figures are computed once, at insert time only.
	if in.EndedAt != nil {
		seconds := int64(in.EndedAt.Sub(in.StartedAt).Seconds())
		alert.GridDownSeconds = &seconds

		capacity := plant.CapacityKw
		alert.BenefitKwh = benefit.GridDowntime(&in.StartedAt, in.EndedAt, &capacity)
	}

	*fresh = append(*fresh, alert)
	return 1, 0, nil
}
