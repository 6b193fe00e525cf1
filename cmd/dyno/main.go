// Command dyno estimates a wheel horsepower and torque curve from an ECU
// datalog, either locally or by uploading it to a dyno-server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/banshee-data/dyno.report/internal/api"
	"github.com/banshee-data/dyno.report/internal/chart"
	"github.com/banshee-data/dyno.report/internal/config"
	"github.com/banshee-data/dyno.report/internal/datalog"
	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/version"
)

type options struct {
	logPath    string
	configPath string

	vehiclePath    string
	weight         int
	displacement   float64
	drive          string
	platform       string
	calibrationKey string
	turbo          bool

	gear        int
	smoothing   int
	calibration float64

	noAFR, noKnock, noAtmospheric, noVE, noBoost bool

	htmlOut string
	pngOut  string
	jsonOut bool

	serverURL string
	vehicleID string

	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("dyno", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.logPath, "log", "", "Datalog CSV to estimate (required)")
	fs.StringVar(&o.configPath, "config", "", "Optional dyno config JSON (calibration, aliases, smoothing)")

	fs.StringVar(&o.vehiclePath, "vehicle", "", "Vehicle profile JSON; overrides the individual vehicle flags")
	fs.IntVar(&o.weight, "weight", 0, "Vehicle weight in lb")
	fs.Float64Var(&o.displacement, "displacement", 0, "Engine displacement in litres")
	fs.StringVar(&o.drive, "drive", "FWD", "Drive type: FWD, AWD or RWD")
	fs.StringVar(&o.platform, "platform", dyno.GenericPlatform, "ECU platform for header aliases")
	fs.StringVar(&o.calibrationKey, "calibration-key", "", "Calibration table key, e.g. wrx_2015")
	fs.BoolVar(&o.turbo, "forced-induction", false, "Vehicle is turbocharged or supercharged")

	fs.IntVar(&o.gear, "gear", 4, "Gear the pull was logged in (3-5)")
	fs.IntVar(&o.smoothing, "smoothing", -1, "Smoothing level 0-5 (default from config)")
	fs.Float64Var(&o.calibration, "calibration", 0, "Calibration factor override (0 uses the table)")

	fs.BoolVar(&o.noAFR, "no-afr", false, "Disable AFR correction")
	fs.BoolVar(&o.noKnock, "no-knock", false, "Disable knock correction")
	fs.BoolVar(&o.noAtmospheric, "no-atmospheric", false, "Disable intake temperature correction")
	fs.BoolVar(&o.noVE, "no-ve", false, "Disable volumetric efficiency correction")
	fs.BoolVar(&o.noBoost, "no-boost", false, "Disable boost term in the load method")

	fs.StringVar(&o.htmlOut, "html", "", "Write an interactive HTML chart to this path")
	fs.StringVar(&o.pngOut, "png", "", "Write a PNG chart to this path")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the result as JSON instead of tables")

	fs.StringVar(&o.serverURL, "server", "", "Upload to this dyno-server instead of estimating locally")
	fs.StringVar(&o.vehicleID, "vehicle-id", "", "Stored vehicle ID (with -server)")

	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

func (o *options) validate() error {
	if o.logPath == "" {
		return errors.New("-log is required")
	}
	if o.smoothing != -1 {
		if err := dyno.ValidateSmoothingLevel(o.smoothing); err != nil {
			return err
		}
	}
	if err := dyno.ValidateGear(o.gear); err != nil {
		return fmt.Errorf("-gear: %w", err)
	}
	if o.calibration < 0 {
		return fmt.Errorf("invalid -calibration %g", o.calibration)
	}
	if o.serverURL != "" && o.vehicleID == "" {
		return errors.New("-vehicle-id is required with -server")
	}
	return nil
}

func (o *options) settings(defaultSmoothing int) dyno.Settings {
	s := dyno.Settings{
		UseAFRCorrection:         !o.noAFR,
		UseKnockCorrection:       !o.noKnock,
		UseAtmosphericCorrection: !o.noAtmospheric,
		UseVolumetricEfficiency:  !o.noVE,
		UseBoostCorrection:       !o.noBoost,
		SmoothingLevel:           defaultSmoothing,
	}
	if o.smoothing != -1 {
		s.SmoothingLevel = o.smoothing
	}
	if o.calibration > 0 {
		factor := o.calibration
		s.CalibrationOverride = &factor
	}
	return s
}

// profile reads -vehicle when given, else assembles one from flags.
func (o *options) profile() (dyno.VehicleProfile, error) {
	var p dyno.VehicleProfile
	if o.vehiclePath != "" {
		data, err := os.ReadFile(o.vehiclePath)
		if err != nil {
			return p, fmt.Errorf("read vehicle profile: %w", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse vehicle profile %s: %w", o.vehiclePath, err)
		}
	} else {
		p = dyno.VehicleProfile{
			WeightLb:        o.weight,
			DisplacementL:   o.displacement,
			DriveType:       dyno.DriveType(o.drive),
			CalibrationKey:  o.calibrationKey,
			Platform:        o.platform,
			ForcedInduction: o.turbo,
		}
	}
	drive, err := dyno.ParseDriveType(string(p.DriveType))
	if err != nil {
		return p, err
	}
	p.DriveType = drive
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("vehicle profile: %w", err)
	}
	return p, nil
}

func (o *options) loadConfig() (*config.DynoConfig, error) {
	if o.configPath == "" {
		return config.EmptyDynoConfig(), nil
	}
	return config.LoadDynoConfig(o.configPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String("dyno"))
		return 0
	}
	if err := o.validate(); err != nil {
		fmt.Fprintf(stderr, "dyno: %v\n", err)
		return 2
	}

	var rep *report
	if o.serverURL != "" {
		rep, err = estimateRemote(ctx, o)
	} else {
		rep, err = estimateLocal(o)
	}
	if err != nil {
		fmt.Fprintf(stderr, "dyno: %v\n", err)
		return 1
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "dyno: %v\n", err)
			return 1
		}
	} else {
		rep.Render(stdout)
	}

	if err := writeCharts(o, rep); err != nil {
		fmt.Fprintf(stderr, "dyno: %v\n", err)
		return 1
	}
	return 0
}

func estimateLocal(o *options) (*report, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	pipeline, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	profile, err := o.profile()
	if err != nil {
		return nil, err
	}

	table, format, err := datalog.DecodeFile(o.logPath)
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Estimate(table, profile, o.gear, o.settings(cfg.GetDefaultSmoothingLevel()))
	if err != nil {
		return nil, err
	}
	return newReport(filepath.Base(o.logPath), o.gear, res, &format), nil
}

func estimateRemote(ctx context.Context, o *options) (*report, error) {
	f, err := os.Open(o.logPath)
	if err != nil {
		return nil, fmt.Errorf("open datalog: %w", err)
	}
	defer f.Close()

	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	client := api.NewClient(o.serverURL, nil)
	resp, err := client.UploadRun(ctx, api.Upload{
		VehicleID: o.vehicleID,
		Filename:  filepath.Base(o.logPath),
		Data:      f,
		Gear:      o.gear,
		Settings:  o.settings(cfg.GetDefaultSmoothingLevel()),
	})
	if err != nil {
		return nil, fmt.Errorf("upload to %s: %w", o.serverURL, err)
	}
	return newRemoteReport(resp), nil
}

func writeCharts(o *options, rep *report) error {
	c := chart.Chart{
		Title:          rep.Title,
		Curve:          rep.Curve,
		Peaks:          rep.Peaks,
		SmoothingLevel: rep.SmoothingLevel,
	}
	for _, path := range []string{o.htmlOut, o.pngOut} {
		if path == "" {
			continue
		}
		if err := chart.WriteFile(path, c); err != nil {
			return err
		}
	}
	return nil
}
