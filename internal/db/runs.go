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

// Run is a stored estimation. Curve is the raw aggregated curve; smoothing
// is applied on read.
type Run struct {
	ID           string              `json:"id"`
	VehicleID    string              `json:"vehicle_id"`
	Filename     string              `json:"filename"`
	Gear         int                 `json:"gear"`
	Method       dyno.Method         `json:"method"`
	Settings     dyno.Settings       `json:"settings"`
	MethodCounts map[dyno.Method]int `json:"method_counts"`
	Channels     map[string]string   `json:"channels"`
	Stats        dyno.IngestStats    `json:"stats"`
	Peaks        dyno.PeakSummary    `json:"peaks"`
	Curve        []dyno.CurvePoint   `json:"curve,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// NewRun captures an estimation result for storage.
func NewRun(vehicleID, filename string, gear int, settings dyno.Settings, res *dyno.Result) *Run {
	return &Run{
		VehicleID:    vehicleID,
		Filename:     filename,
		Gear:         gear,
		Method:       res.Method,
		Settings:     settings,
		MethodCounts: res.MethodCounts,
		Channels:     res.Channels,
		Stats:        res.Stats,
		Peaks:        res.Peaks,
		Curve:        res.Curve,
	}
}

const runColumns = `
	run_id, vehicle_id, filename, gear, method, settings_json,
	method_counts_json, channels_json, total_rows, skipped_rows,
	filtered_rows, max_hp, max_hp_rpm, max_torque, max_torque_rpm,
	max_boost, power_to_weight, created_unix_nanos`

// CreateRun inserts a run and its curve points in one transaction. If r.ID
// is empty a new UUID is generated.
func (db *DB) CreateRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = db.clock.Now().UTC()

	settings, err := json.Marshal(r.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	counts, err := json.Marshal(r.MethodCounts)
	if err != nil {
		return fmt.Errorf("encode method counts: %w", err)
	}
	channels, err := json.Marshal(r.Channels)
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.VehicleID, r.Filename, r.Gear, string(r.Method), string(settings),
		string(counts), string(channels), r.Stats.TotalRows, r.Stats.SkippedRows,
		r.Stats.FilteredRows, r.Peaks.MaxHorsepower, r.Peaks.MaxHorsepowerRPM,
		r.Peaks.MaxTorque, r.Peaks.MaxTorqueRPM, r.Peaks.MaxBoost,
		r.Peaks.PowerToWeightRatio, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_points (run_id, rpm, horsepower, torque, boost, mass_airflow, load)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run points: %w", err)
	}
	defer stmt.Close()

	for _, p := range r.Curve {
		if _, err := stmt.Exec(r.ID, p.RPM, p.Horsepower, p.Torque, p.Boost, p.MassAirflow, p.Load); err != nil {
			return fmt.Errorf("insert run point at %d rpm: %w", p.RPM, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// GetRun returns a run with its curve in ascending rpm order.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := db.Query(`
		SELECT rpm, horsepower, torque, boost, mass_airflow, load
		FROM run_points
		WHERE run_id = ?
		ORDER BY rpm`, id)
	if err != nil {
		return nil, fmt.Errorf("get run points: %w", err)
	}
	defer rows.Close()

	r.Curve = []dyno.CurvePoint{}
	for rows.Next() {
		var p dyno.CurvePoint
		if err := rows.Scan(&p.RPM, &p.Horsepower, &p.Torque, &p.Boost, &p.MassAirflow, &p.Load); err != nil {
			return nil, fmt.Errorf("scan run point: %w", err)
		}
		r.Curve = append(r.Curve, p)
	}
	return r, rows.Err()
}

// ListRuns returns run summaries, newest first, without curves. An empty
// vehicleID lists every run.
func (db *DB) ListRuns(vehicleID string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if vehicleID != "" {
		query += ` WHERE vehicle_id = ?`
		args = append(args, vehicleID)
	}
	query += ` ORDER BY created_unix_nanos DESC, run_id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its points.
func (db *DB) DeleteRun(id string) error {
	result, err := db.Exec("DELETE FROM runs WHERE run_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return expectAffected(result, "run", id)
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r                Run
		method           string
		settings         string
		counts, channels sql.NullString
		createdAt        int64
	)
	err := s.Scan(
		&r.ID, &r.VehicleID, &r.Filename, &r.Gear, &method, &settings,
		&counts, &channels, &r.Stats.TotalRows, &r.Stats.SkippedRows,
		&r.Stats.FilteredRows, &r.Peaks.MaxHorsepower, &r.Peaks.MaxHorsepowerRPM,
		&r.Peaks.MaxTorque, &r.Peaks.MaxTorqueRPM, &r.Peaks.MaxBoost,
		&r.Peaks.PowerToWeightRatio, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.Method = dyno.Method(method)
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.Stats.Accepted = r.Stats.TotalRows - r.Stats.SkippedRows - r.Stats.FilteredRows

	if err := json.Unmarshal([]byte(settings), &r.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if counts.Valid {
		if err := json.Unmarshal([]byte(counts.String), &r.MethodCounts); err != nil {
			return nil, fmt.Errorf("decode method counts: %w", err)
		}
	}
	if channels.Valid {
		if err := json.Unmarshal([]byte(channels.String), &r.Channels); err != nil {
			return nil, fmt.Errorf("decode channels: %w", err)
		}
	}
	return &r, nil
}
