package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dyno.report/internal/dyno"
)

// Vehicle is a stored vehicle profile.
type Vehicle struct {
	ID string `json:"id"`
	dyno.VehicleProfile
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile returns the estimation profile for this vehicle.
func (v *Vehicle) Profile() dyno.VehicleProfile {
	return v.VehicleProfile
}

const vehicleColumns = `
	vehicle_id, name, weight_lb, displacement_l, drive_type,
	calibration_key, platform, forced_induction, gear_ratios_json,
	created_unix_nanos, updated_unix_nanos`

// CreateVehicle validates and inserts a vehicle. If v.ID is empty a new UUID
// is generated. An empty platform is stored as generic.
func (db *DB) CreateVehicle(v *Vehicle) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid vehicle: %w", err)
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Platform == "" {
		v.Platform = dyno.GenericPlatform
	}
	now := db.clock.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now

	ratios, err := marshalGearRatios(v.GearRatios)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.WeightLb, v.DisplacementL, string(v.DriveType),
		v.CalibrationKey, v.Platform, v.ForcedInduction, ratios,
		now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

// UpdateVehicle replaces a stored vehicle's profile.
func (db *DB) UpdateVehicle(v *Vehicle) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid vehicle: %w", err)
	}
	if v.Platform == "" {
		v.Platform = dyno.GenericPlatform
	}
	ratios, err := marshalGearRatios(v.GearRatios)
	if err != nil {
		return err
	}
	now := db.clock.Now().UTC()

	result, err := db.Exec(`
		UPDATE vehicles SET
			name = ?, weight_lb = ?, displacement_l = ?, drive_type = ?,
			calibration_key = ?, platform = ?, forced_induction = ?,
			gear_ratios_json = ?, updated_unix_nanos = ?
		WHERE vehicle_id = ?`,
		v.Name, v.WeightLb, v.DisplacementL, string(v.DriveType),
		v.CalibrationKey, v.Platform, v.ForcedInduction,
		ratios, now.UnixNano(), v.ID,
	)
	if err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	if err := expectAffected(result, "vehicle", v.ID); err != nil {
		return err
	}
	v.UpdatedAt = now
	return nil
}

// GetVehicle returns a vehicle by ID.
func (db *DB) GetVehicle(id string) (*Vehicle, error) {
	row := db.QueryRow(`SELECT `+vehicleColumns+` FROM vehicles WHERE vehicle_id = ?`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

// ListVehicles returns all vehicles ordered by name.
func (db *DB) ListVehicles() ([]*Vehicle, error) {
	rows, err := db.Query(`SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY name, created_unix_nanos`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := []*Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// DeleteVehicle removes a vehicle and, through the foreign key, its runs.
func (db *DB) DeleteVehicle(id string) error {
	result, err := db.Exec("DELETE FROM vehicles WHERE vehicle_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	return expectAffected(result, "vehicle", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(s rowScanner) (*Vehicle, error) {
	var (
		v                  Vehicle
		driveType          string
		ratios             sql.NullString
		createdAt, updated int64
	)
	err := s.Scan(
		&v.ID, &v.Name, &v.WeightLb, &v.DisplacementL, &driveType,
		&v.CalibrationKey, &v.Platform, &v.ForcedInduction, &ratios,
		&createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	v.DriveType = dyno.DriveType(driveType)
	if ratios.Valid && ratios.String != "" {
		if err := json.Unmarshal([]byte(ratios.String), &v.GearRatios); err != nil {
			return nil, fmt.Errorf("decode gear ratios: %w", err)
		}
	}
	v.CreatedAt = time.Unix(0, createdAt).UTC()
	v.UpdatedAt = time.Unix(0, updated).UTC()
	return &v, nil
}

func marshalGearRatios(ratios map[int]float64) (sql.NullString, error) {
	if len(ratios) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ratios)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode gear ratios: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func expectAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
