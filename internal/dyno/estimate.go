package dyno

import (
	"math"

	"github.com/banshee-data/dyno.report/internal/units"
)

// Formula constants. They are empirical and tuned together with the
// calibration table; change them only alongside a recalibration.
const (
	// massAirflowThreshold selects the airflow method.
	massAirflowThreshold   = 5.0
	// pressureBoostThreshold is the lowest boost the pressure method trusts.
	pressureBoostThreshold = -10.0
	// airflowToHP converts corrected airflow (g/s) to crank horsepower.
	airflowToHP            = 1.08
	// displacementBaseline is the 2.0 L engine the formulas are scaled from.
	displacementBaseline   = 2.0

	mafLoadScale            = 1.15
	mafLoadCap              = 1.05
	mafDisplacementPerLitre = 0.025

	mapTheoreticalAirflow = 0.0135
	mapLoadScale          = 1.2
	mapLoadCap            = 1.05

	loadMethodScale       = 0.025
	loadDisplacementExp   = 0.8
	loadMethodBoostPerPSI = 0.04

	forcedInductionAFR = 11.8
	naturalAFR         = 12.8
	afrMinValid        = 9.0
	afrMaxValid        = 19.0
	afrBadDataFactor   = 0.95

	knockLossPerDegree = 0.018

	atmosphericMin = 0.95
	atmosphericMax = 1.05

	// torqueConstant relates lb-ft, hp and rpm: hp = torque * rpm / 5252.
	torqueConstant = 5252.0
)

// veBand is a piecewise-constant multiplier starting at MinRPM.
type veBand struct {
	MinRPM     int
	Multiplier float64
}

// volumetricEfficiencyBands shape engine breathing across the rev range,
// peaking at 3800-4200 rpm. A sample uses the last band whose MinRPM it meets.
var volumetricEfficiencyBands = []veBand{
	{0, 0.92},
	{2500, 0.98},
	{3000, 1.04},
	{3500, 1.08},
	{3800, 1.12},
	{4200, 1.09},
	{5000, 1.05},
	{5600, 1.02},
	{6200, 0.99},
}

var gearFactors = map[int]float64{
	3: 0.975,
	4: 1.0,
	5: 1.015,
}

var drivetrainFactors = map[DriveType]float64{
	DriveFWD: 1.0,
	DriveAWD: 0.955,
	DriveRWD: 0.98,
}

// Estimator computes per-sample horsepower.
type Estimator struct {
	Calibration *CalibrationTable
}

// NewEstimator returns an estimator using the given calibration table. A nil
// table calibrates every vehicle at 1.0.
func NewEstimator(calibration *CalibrationTable) *Estimator {
	return &Estimator{Calibration: calibration}
}

// SelectMethod picks the base formula for a sample: airflow when MAF reads
// above 5 g/s, pressure when boost and intake temperature are usable, load
// otherwise.
func SelectMethod(s Sample) Method {
	switch {
	case s.MassAirflow > massAirflowThreshold:
		return MethodMAF
	case s.Boost > pressureBoostThreshold && s.IntakeAirTemp > 0:
		return MethodMAP
	default:
		return MethodLoad
	}
}

// BaseHorsepower runs the selected base formula before any corrections.
func BaseHorsepower(s Sample, displacementL float64, useBoost bool) (float64, Method) {
	m := SelectMethod(s)
	switch m {
	case MethodMAF:
		loadFactor := math.Min(s.Load*mafLoadScale, mafLoadCap)
		dispFactor := 1 + (displacementL-displacementBaseline)*mafDisplacementPerLitre
		return s.MassAirflow * airflowToHP * loadFactor * dispFactor, m

	case MethodMAP:
		pressureRatio := (math.Abs(s.Boost) + units.AtmosphericPSI) / units.AtmosphericPSI
		tempRatio := units.StandardRankine / units.FahrenheitToRankine(s.IntakeAirTemp)
		density := pressureRatio * tempRatio
		theoretical := BaselineVE(s.RPM) * displacementL * float64(s.RPM) * mapTheoreticalAirflow
		airflow := theoretical * density * math.Min(s.Load*mapLoadScale, mapLoadCap)
		return airflow * airflowToHP, m

	default:
		hp := s.Load * float64(s.RPM) * loadMethodScale * math.Pow(displacementL/displacementBaseline, loadDisplacementExp)
		if useBoost && s.Boost > 0 {
			hp *= 1 + s.Boost*loadMethodBoostPerPSI
		}
		return hp, MethodLoad
	}
}

// BaselineVE is the volumetric efficiency the pressure method assumes when
// turning displacement into theoretical airflow.
func BaselineVE(rpm int) float64 {
	r := float64(rpm)
	switch {
	case rpm < 2500:
		return 0.75
	case rpm < 3500:
		return 0.75 + (r-2500)/1000*0.20
	case rpm <= 4500:
		return 0.95
	case rpm < 5500:
		return 0.95 - (r-4500)/1000*0.10
	default:
		return 0.85
	}
}

// AFRCorrection penalises mixtures away from the optimum for the induction
// type. Readings outside 9-19 are treated as bad data.
func AFRCorrection(afr float64, forcedInduction bool) float64 {
	if afr < afrMinValid || afr > afrMaxValid {
		return afrBadDataFactor
	}
	optimal := naturalAFR
	if forcedInduction {
		optimal = forcedInductionAFR
	}
	d := math.Abs(afr - optimal)
	switch {
	case d <= 1.0:
		return 1.0
	case d <= 2.0:
		return 1 - (d-1)*0.025
	default:
		return 1 - 0.025 - (d-2)*0.03
	}
}

// KnockCorrection removes about 1.8% per degree of retard.
func KnockCorrection(retard float64) float64 {
	return math.Max(0, 1-retard*knockLossPerDegree)
}

// AtmosphericCorrection scales by intake air density relative to 78°F.
func AtmosphericCorrection(intakeTempF float64) float64 {
	c := math.Sqrt(units.StandardRankine / units.FahrenheitToRankine(intakeTempF))
	return math.Min(math.Max(c, atmosphericMin), atmosphericMax)
}

// VolumetricEfficiencyCorrection returns the breathing multiplier for an rpm.
func VolumetricEfficiencyCorrection(rpm int) float64 {
	m := volumetricEfficiencyBands[0].Multiplier
	for _, b := range volumetricEfficiencyBands {
		if rpm < b.MinRPM {
			break
		}
		m = b.Multiplier
	}
	return m
}

// GearCorrection is relative to 4th gear. Unknown gears get 1.0.
func GearCorrection(gear int) float64 {
	if f, ok := gearFactors[gear]; ok {
		return f
	}
	return 1.0
}

// DrivetrainCorrection is parasitic loss relative to FWD.
func DrivetrainCorrection(d DriveType) float64 {
	if f, ok := drivetrainFactors[d]; ok {
		return f
	}
	return 1.0
}

// Torque derives lb-ft from horsepower. Zero rpm yields zero torque.
func Torque(hp float64, rpm int) float64 {
	if rpm == 0 {
		return 0
	}
	return hp * torqueConstant / float64(rpm)
}

// Horsepower estimates power for one sample and reports the method used.
// The correction chain is AFR, knock, atmospheric, VE, gear, drivetrain and
// calibration, in that order. The result is never negative.
func (e *Estimator) Horsepower(s Sample, gear int, v VehicleProfile, set Settings) (float64, Method) {
	hp, method := BaseHorsepower(s, v.DisplacementL, set.UseBoostCorrection)

	if set.UseAFRCorrection && s.AFR > 0 {
		hp *= AFRCorrection(s.AFR, s.IsForceInduction)
	}
	if set.UseKnockCorrection && s.KnockRetard > 0 {
		hp *= KnockCorrection(s.KnockRetard)
	}
	if set.UseAtmosphericCorrection && s.IntakeAirTemp > 0 {
		hp *= AtmosphericCorrection(s.IntakeAirTemp)
	}
	if set.UseVolumetricEfficiency {
		hp *= VolumetricEfficiencyCorrection(s.RPM)
	}
	hp *= GearCorrection(gear)
	hp *= DrivetrainCorrection(v.DriveType)
	hp *= e.calibrationFactor(v.CalibrationKey, method, set)

	return math.Max(0, hp), method
}

func (e *Estimator) calibrationFactor(vehicle string, method Method, set Settings) float64 {
	if set.CalibrationOverride != nil {
		return *set.CalibrationOverride
	}
	return e.Calibration.Lookup(vehicle, method)
}
