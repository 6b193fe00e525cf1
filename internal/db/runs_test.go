package db

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dyno.report/internal/dyno"
)

func testResult() *dyno.Result {
	return &dyno.Result{
		Curve: []dyno.CurvePoint{
			{RPM: 3000, Horsepower: 120, Torque: 210.1, Boost: 10, MassAirflow: 120, Load: 0.8},
			{RPM: 4000, Horsepower: 180, Torque: 236.3, Boost: 15, MassAirflow: 170, Load: 0.9},
			{RPM: 5000, Horsepower: 210, Torque: 220.6, Boost: 16.5, MassAirflow: 195, Load: 0.95},
		},
		Peaks: dyno.PeakSummary{
			MaxHorsepower: 210, MaxHorsepowerRPM: 5000,
			MaxTorque: 236.3, MaxTorqueRPM: 4000,
			MaxBoost: 16.5, PowerToWeightRatio: 63.6,
		},
		Method:       dyno.MethodMAF,
		MethodCounts: map[dyno.Method]int{dyno.MethodMAF: 40, dyno.MethodMAP: 2},
		Stats:        dyno.IngestStats{TotalRows: 50, SkippedRows: 3, FilteredRows: 5, Accepted: 42},
		Channels:     map[string]string{"rpm": "Engine Speed (rpm)", "maf": "Mass Airflow (g/s)"},
	}
}

func createTestRun(t *testing.T, db *DB, vehicleID string) *Run {
	t.Helper()
	settings := dyno.DefaultSettings()
	settings.SmoothingLevel = 2
	r := NewRun(vehicleID, "pull.csv", 3, settings, testResult())
	require.NoError(t, db.CreateRun(r))
	return r
}

func TestCreateAndGetRun(t *testing.T) {
	db, _ := setupTestDB(t)
	v := testVehicle("Runner")
	require.NoError(t, db.CreateVehicle(v))

	r := createTestRun(t, db, v.ID)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, testEpoch, r.CreatedAt)

	got, err := db.GetRun(r.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(r, got); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRun_CalibrationOverride(t *testing.T) {
	db, _ := setupTestDB(t)
	v := testVehicle("Override")
	require.NoError(t, db.CreateVehicle(v))

	factor := 1.07
	settings := dyno.DefaultSettings()
	settings.UseKnockCorrection = false
	settings.CalibrationOverride = &factor
	r := NewRun(v.ID, "", 4, settings, testResult())
	require.NoError(t, db.CreateRun(r))

	got, err := db.GetRun(r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Settings.CalibrationOverride)
	assert.Equal(t, 1.07, *got.Settings.CalibrationOverride)
	assert.False(t, got.Settings.UseKnockCorrection)
}

func TestCreateRun_UnknownVehicle(t *testing.T) {
	db, _ := setupTestDB(t)

	r := NewRun("no-such-vehicle", "pull.csv", 3, dyno.DefaultSettings(), testResult())
	assert.ErrorContains(t, db.CreateRun(r), "insert run")

	runs, err := db.ListRuns("")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCreateRun_DuplicateRPMRollsBack(t *testing.T) {
	db, _ := setupTestDB(t)
	v := testVehicle("Dupe")
	require.NoError(t, db.CreateVehicle(v))

	res := testResult()
	res.Curve = append(res.Curve, res.Curve[0])
	r := NewRun(v.ID, "pull.csv", 3, dyno.DefaultSettings(), res)
	assert.ErrorContains(t, db.CreateRun(r), "insert run point at 3000 rpm")

	_, err := db.GetRun(r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	db, clock := setupTestDB(t)
	a := testVehicle("A")
	b := testVehicle("B")
	require.NoError(t, db.CreateVehicle(a))
	require.NoError(t, db.CreateVehicle(b))

	first := createTestRun(t, db, a.ID)
	clock.Advance(time.Minute)
	second := createTestRun(t, db, a.ID)
	clock.Advance(time.Minute)
	other := createTestRun(t, db, b.ID)

	runs, err := db.ListRuns(a.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
	assert.Nil(t, runs[0].Curve)
	assert.Equal(t, 42, runs[0].Stats.Accepted)
	assert.Equal(t, 210.0, runs[0].Peaks.MaxHorsepower)

	all, err := db.ListRuns("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID)

	none, err := db.ListRuns("unknown")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDeleteRun(t *testing.T) {
	db, _ := setupTestDB(t)
	v := testVehicle("Deleter")
	require.NoError(t, db.CreateVehicle(v))
	r := createTestRun(t, db, v.ID)

	require.NoError(t, db.DeleteRun(r.ID))
	assert.ErrorIs(t, db.DeleteRun(r.ID), ErrNotFound)

	var points int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM run_points WHERE run_id = ?`, r.ID).Scan(&points))
	assert.Zero(t, points)
}

func TestDeleteVehicle_CascadesRuns(t *testing.T) {
	db, _ := setupTestDB(t)
	v := testVehicle("Cascade")
	require.NoError(t, db.CreateVehicle(v))
	r := createTestRun(t, db, v.ID)

	require.NoError(t, db.DeleteVehicle(v.ID))

	_, err := db.GetRun(r.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var points int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM run_points`).Scan(&points))
	assert.Zero(t, points)
}
