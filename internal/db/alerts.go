package db

import (
	"database/sql"
	"fmt"
	"time"
)

const alertInsertQuery = `
    INSERT INTO alerts (
        id, plant_id, vendor_id, vendor_plant_id, vendor_alert_id, title,
        description, severity, status, alert_at, ended_at, grid_down_seconds,
        benefit_kwh, expires_at, created_at, updated_at
    ) VALUES (
        :id, :plant_id, :vendor_id, :vendor_plant_id, :vendor_alert_id, :title,
        :description, :severity, :status, :alert_at, :ended_at, :grid_down_seconds,
        :benefit_kwh, :expires_at, :created_at, :updated_at
    )`

// FindAlert resolves the dedup key (vendor_id, vendor_plant_id,
// vendor_alert_id). Returns nil without error when no occurrence matches.
func (r *Repository) FindAlert(vendorID, vendorPlantID, vendorAlertID string) (*Alert, error) {
	var a Alert
	query := `
        SELECT * FROM alerts
        WHERE vendor_id = $1 AND vendor_plant_id = $2 AND vendor_alert_id = $3`
	err := r.db.Get(&a, query, vendorID, vendorPlantID, vendorAlertID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAlertByPlantTitleDay is the dedup fallback for vendors that expose
// no native alert id: one alert per (plant, title, calendar day).
func (r *Repository) FindAlertByPlantTitleDay(plantID, title string, day time.Time) (*Alert, error) {
	var a Alert
	query := `
        SELECT * FROM alerts
        WHERE plant_id = $1 AND title = $2
          AND alert_at >= $3 AND alert_at < $4
        ORDER BY alert_at DESC LIMIT 1`
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	err := r.db.Get(&a, query, plantID, title, dayStart, dayStart.AddDate(0, 0, 1))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetAlert(id string) (*Alert, error) {
	var a Alert
	query := `SELECT * FROM alerts WHERE id = $1`
	err := r.db.Get(&a, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert not found")
	}
	return &a, err
}

// GetAlertsByPlant returns a plant's alerts newest-first.
func (r *Repository) GetAlertsByPlant(plantID string, limit int) ([]*Alert, error) {
	alerts := []*Alert{}
	query := `
        SELECT * FROM alerts
        WHERE plant_id = $1
        ORDER BY alert_at DESC
        LIMIT $2`
	err := r.db.Select(&alerts, query, plantID, limit)
	return alerts, err
}

func (r *Repository) GetAlertsByDate(from, to time.Time) ([]*Alert, error) {
	alerts := []*Alert{}
	query := `
        SELECT * FROM alerts
        WHERE alert_at >= $1 AND alert_at < $2
        ORDER BY alert_at DESC`
	err := r.db.Select(&alerts, query, from, to)
	return alerts, err
}

func (r *Repository) CreateAlert(a *Alert) error {
	_, err := r.db.NamedExec(alertInsertQuery, a)
	return err
}

// UpdateAlert overwrites the mutable occurrence fields. TTL and benefit
// are computed once at insert and are not recomputed here.
func (r *Repository) UpdateAlert(a *Alert) error {
	query := `
        UPDATE alerts SET
            title = :title,
            description = :description,
            severity = :severity,
            alert_at = :alert_at,
            ended_at = :ended_at,
            updated_at = :updated_at
        WHERE id = :id`
	_, err := r.db.NamedExec(query, a)
	return err
}

// BatchCreateAlerts inserts alerts in write-batch-sized chunks with a
// serial per-item fallback on chunk failure.
func (r *Repository) BatchCreateAlerts(alerts []*Alert) error {
	return writeChunked(alerts, WriteBatchSize,
		func(chunk []*Alert) error {
			_, err := r.db.NamedExec(alertInsertQuery, chunk)
			return err
		},
		r.CreateAlert,
	)
}

const readingInsertQuery = `
    INSERT INTO readings (plant_id, taken_at, power_kw, energy_kwh, expires_at)
    VALUES (:plant_id, :taken_at, :power_kw, :energy_kwh, :expires_at)
    ON CONFLICT (plant_id, taken_at) DO UPDATE SET
        power_kw = EXCLUDED.power_kw,
        energy_kwh = EXCLUDED.energy_kwh`

// BatchCreateReadings upserts telemetry samples in chunks. Re-syncing the
// same day is idempotent via the (plant_id, taken_at) conflict target.
func (r *Repository) BatchCreateReadings(readings []*Reading) error {
	return writeChunked(readings, WriteBatchSize,
		func(chunk []*Reading) error {
			_, err := r.db.NamedExec(readingInsertQuery, chunk)
			return err
		},
		func(rd *Reading) error {
			_, err := r.db.NamedExec(readingInsertQuery, rd)
			return err
		},
	)
}
