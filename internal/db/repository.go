package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Vendor operations
func (r *Repository) GetActiveVendors() ([]*Vendor, error) {
	vendors := []*Vendor{}
	query := `SELECT * FROM vendors WHERE active = true ORDER BY created_at`
	err := r.db.Select(&vendors, query)
	return vendors, err
}

func (r *Repository) GetVendor(id string) (*Vendor, error) {
	var v Vendor
	query := `SELECT * FROM vendors WHERE id = $1`
	err := r.db.Get(&v, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vendor not found")
	}
	return &v, err
}

func (r *Repository) UpdateVendorLastSynced(id string, at time.Time) error {
	query := `UPDATE vendors SET last_synced_at = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(query, id, at)
	return err
}

// Plant operations
func (r *Repository) GetPlantsByVendor(vendorID string) ([]*Plant, error) {
	plants := []*Plant{}
	query := `SELECT * FROM plants WHERE vendor_id = $1 ORDER BY created_at`
	err := r.db.Select(&plants, query, vendorID)
	return plants, err
}

func (r *Repository) GetPlantsByOrg(orgID string) ([]*Plant, error) {
	plants := []*Plant{}
	query := `SELECT * FROM plants WHERE org_id = $1 ORDER BY created_at`
	err := r.db.Select(&plants, query, orgID)
	return plants, err
}

// GetPlantByVendorPlant looks a plant up by its upsert identity.
// Returns nil without error when no row matches.
func (r *Repository) GetPlantByVendorPlant(vendorID, vendorPlantID string) (*Plant, error) {
	var p Plant
	query := `SELECT * FROM plants WHERE vendor_id = $1 AND vendor_plant_id = $2`
	err := r.db.Get(&p, query, vendorID, vendorPlantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreatePlant(p *Plant) error {
	query := `
        INSERT INTO plants (
            id, org_id, vendor_id, vendor_plant_id, name, capacity_kw,
            latitude, longitude, address, current_power_kw, energy_today_kwh,
            energy_month_kwh, energy_year_kwh, energy_total_kwh, online,
            last_update_at, last_refreshed_at, active, created_at, updated_at
        ) VALUES (
            :id, :org_id, :vendor_id, :vendor_plant_id, :name, :capacity_kw,
            :latitude, :longitude, :address, :current_power_kw, :energy_today_kwh,
            :energy_month_kwh, :energy_year_kwh, :energy_total_kwh, :online,
            :last_update_at, :last_refreshed_at, :active, :created_at, :updated_at
        )`

	_, err := r.db.NamedExec(query, p)
	return err
}

// UpdatePlant overwrites the mutable production and metadata fields.
// Identity fields (id, org_id, vendor_id, vendor_plant_id) are never
// touched after the first insert.
func (r *Repository) UpdatePlant(p *Plant) error {
	_, err := r.db.NamedExec(plantUpdateQuery, p)
	return err
}

// BatchUpdatePlants writes plants in write-batch-sized chunks. A failed
// chunk falls back to one update per item; individual failures are
// collected into the returned *BatchError, remaining chunks still run.
func (r *Repository) BatchUpdatePlants(plants []*Plant) error {
	return writeChunked(plants, WriteBatchSize,
		func(chunk []*Plant) error {
			tx, err := r.db.Beginx()
			if err != nil {
				return err
			}
			defer tx.Rollback()
			for _, p := range chunk {
				if _, err := tx.NamedExec(plantUpdateQuery, p); err != nil {
					return err
				}
			}
			return tx.Commit()
		},
		func(p *Plant) error {
			_, err := r.db.NamedExec(plantUpdateQuery, p)
			return err
		},
	)
}

const plantUpdateQuery = `
    UPDATE plants SET
        name = :name,
        capacity_kw = :capacity_kw,
        latitude = :latitude,
        longitude = :longitude,
        address = :address,
        current_power_kw = :current_power_kw,
        energy_today_kwh = :energy_today_kwh,
        energy_month_kwh = :energy_month_kwh,
        energy_year_kwh = :energy_year_kwh,
        energy_total_kwh = :energy_total_kwh,
        online = :online,
        last_update_at = :last_update_at,
        last_refreshed_at = :last_refreshed_at,
        updated_at = :updated_at
    WHERE id = :id`
