package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"diptune/internal/storage"
	tuneapi "diptune/pkg/diptune"
)

const exportsDir = "exports"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "tune":
		return runTune(ctx, args[1:])
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "variants":
		return runVariants(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: diptunectl <init|tune|simulate|runs|show|export|variants> [flags]", msg)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newClient(storeKind, dbPath string) (*tuneapi.Client, error) {
	return tuneapi.New(tuneapi.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		ExportsDir: exportsDir,
		Logger:     newLogger(),
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "diptune.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runTune(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tune", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional tune config JSON path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	variant := fs.String("variant", "classical_smc", "controller variant: classical_smc|sta_smc|adaptive_smc|hybrid_adaptive_sta_smc (aliases accepted)")
	seed := fs.Int64("seed", 1, "rng seed")
	particles := fs.Int("particles", 0, "swarm size (0 uses default)")
	iterations := fs.Int("iterations", 0, "iteration count (0 uses default)")
	workers := fs.Int("workers", 4, "worker count")
	inertia := fs.Float64("inertia", 0, "inertia weight (0 uses default)")
	inertiaFinal := fs.Float64("inertia-final", 0, "final inertia for a linear schedule (0 keeps inertia constant)")
	cognitive := fs.Float64("cognitive", 0, "cognitive coefficient (0 uses default)")
	social := fs.Float64("social", 0, "social coefficient (0 uses default)")
	velocityClamp := fs.Float64("velocity-clamp", 0, "velocity clamp as a fraction of the bound range (0 disables)")
	stagnationWindow := fs.Int("stagnation-window", 0, "early stop after N iterations without improvement (0 disables)")
	boundsMin := fs.String("bounds-min", "", "comma-separated lower gain bounds (empty uses variant defaults)")
	boundsMax := fs.String("bounds-max", "", "comma-separated upper gain bounds (empty uses variant defaults)")
	dt := fs.Float64("dt", 0, "simulation step in seconds (0 uses default)")
	duration := fs.Float64("duration", 0, "simulation horizon in seconds (0 uses default)")
	integrator := fs.String("integrator", "", "integration method: euler|rk4|rk45 (empty uses default)")
	maxForce := fs.Float64("max-force", 0, "actuator saturation in newtons (0 uses default)")
	boundaryLayer := fs.Float64("boundary-layer", 0, "switching boundary-layer width (0 uses default)")
	switchMethod := fs.String("switch-method", "", "switching function: tanh|linear (empty uses default)")
	initialState := fs.String("initial-state", "", "comma-separated initial state x,th1,th2,xdot,th1dot,th2dot")
	wState := fs.Float64("w-state", 0, "state-error cost weight (0 uses default set)")
	wEffort := fs.Float64("w-effort", 0, "control-effort cost weight")
	wRate := fs.Float64("w-rate", 0, "control-rate cost weight")
	wStability := fs.Float64("w-stability", 0, "sliding-variable cost weight")
	uncEvals := fs.Int("uncertainty-evals", 0, "perturbed-plant evaluations per candidate (0 disables)")
	uncScale := fs.Float64("uncertainty-scale", 0, "relative parameter perturbation scale")
	uncAggregate := fs.String("uncertainty-aggregate", "", "robust cost aggregation: mean|worst")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "diptune.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit tuning result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultTuneRequest(*configPath)
	if err != nil {
		return err
	}

	minBounds, err := parseFloats(*boundsMin)
	if err != nil {
		return fmt.Errorf("bounds-min: %w", err)
	}
	maxBounds, err := parseFloats(*boundsMax)
	if err != nil {
		return fmt.Errorf("bounds-max: %w", err)
	}
	initState, err := parseFloats(*initialState)
	if err != nil {
		return fmt.Errorf("initial-state: %w", err)
	}

	if *configPath == "" {
		req = tuneapi.TuneRequest{
			Variant:              *variant,
			RunID:                *runID,
			Seed:                 *seed,
			Particles:            *particles,
			Iterations:           *iterations,
			Workers:              *workers,
			Inertia:              *inertia,
			InertiaFinal:         *inertiaFinal,
			Cognitive:            *cognitive,
			Social:               *social,
			VelocityClamp:        *velocityClamp,
			StagnationWindow:     *stagnationWindow,
			BoundsMin:            minBounds,
			BoundsMax:            maxBounds,
			Dt:                   *dt,
			Duration:             *duration,
			Integrator:           *integrator,
			MaxForce:             *maxForce,
			BoundaryLayer:        *boundaryLayer,
			SwitchMethod:         *switchMethod,
			InitialState:         initState,
			StateErrorWeight:     *wState,
			ControlWeight:        *wEffort,
			ControlRateWeight:    *wRate,
			StabilityWeight:      *wStability,
			UncertaintyEvals:     *uncEvals,
			UncertaintyScale:     *uncScale,
			UncertaintyAggregate: *uncAggregate,
		}
	} else {
		err := overrideFromFlags(&req, setFlags, map[string]any{
			"variant":               *variant,
			"run-id":                *runID,
			"seed":                  *seed,
			"particles":             *particles,
			"iterations":            *iterations,
			"workers":               *workers,
			"inertia":               *inertia,
			"inertia-final":         *inertiaFinal,
			"cognitive":             *cognitive,
			"social":                *social,
			"velocity-clamp":        *velocityClamp,
			"stagnation-window":     *stagnationWindow,
			"bounds-min":            minBounds,
			"bounds-max":            maxBounds,
			"dt":                    *dt,
			"duration":              *duration,
			"integrator":            *integrator,
			"max-force":             *maxForce,
			"boundary-layer":        *boundaryLayer,
			"switch-method":         *switchMethod,
			"initial-state":         initState,
			"w-state":               *wState,
			"w-effort":              *wEffort,
			"w-rate":                *wRate,
			"w-stability":           *wStability,
			"uncertainty-evals":     *uncEvals,
			"uncertainty-scale":     *uncScale,
			"uncertainty-aggregate": *uncAggregate,
		})
		if err != nil {
			return err
		}
	}
	if len(req.BoundsMin) != len(req.BoundsMax) {
		return errors.New("bounds-min and bounds-max must have the same length")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	result, err := client.Tune(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("tune completed run_id=%s variant=%s seed=%d iterations=%d stopped=%t\n",
		result.RunID, result.Variant, req.Seed, result.Iterations, result.Stopped)
	for i, best := range result.History {
		fmt.Printf("iteration=%d best_cost=%.6f\n", i+1, best)
	}
	fmt.Printf("best_cost=%.6f gains=%s unstable=%t max_abs_control=%.3f\n",
		result.BestCost, formatFloats(result.BestGains), result.Unstable, result.MaxAbsControl)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	variant := fs.String("variant", "classical_smc", "controller variant")
	gains := fs.String("gains", "", "comma-separated controller gains (required)")
	dt := fs.Float64("dt", 0, "simulation step in seconds (0 uses default)")
	duration := fs.Float64("duration", 0, "simulation horizon in seconds (0 uses default)")
	integrator := fs.String("integrator", "", "integration method: euler|rk4|rk45 (empty uses default)")
	maxForce := fs.Float64("max-force", 0, "actuator saturation in newtons (0 uses default)")
	boundaryLayer := fs.Float64("boundary-layer", 0, "switching boundary-layer width (0 uses default)")
	switchMethod := fs.String("switch-method", "", "switching function: tanh|linear (empty uses default)")
	initialState := fs.String("initial-state", "", "comma-separated initial state x,th1,th2,xdot,th1dot,th2dot")
	every := fs.Int("every", 10, "print every Nth sample (<=1 prints all)")
	jsonOut := fs.Bool("json", false, "emit the trajectory as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gains == "" {
		return errors.New("simulate requires --gains")
	}

	gainValues, err := parseFloats(*gains)
	if err != nil {
		return fmt.Errorf("gains: %w", err)
	}
	initState, err := parseFloats(*initialState)
	if err != nil {
		return fmt.Errorf("initial-state: %w", err)
	}

	client, err := newClient("memory", "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Simulate(ctx, tuneapi.SimulateRequest{
		Variant:       *variant,
		Gains:         gainValues,
		Dt:            *dt,
		Duration:      *duration,
		Integrator:    *integrator,
		MaxForce:      *maxForce,
		BoundaryLayer: *boundaryLayer,
		SwitchMethod:  *switchMethod,
		InitialState:  initState,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	step := *every
	if step < 1 {
		step = 1
	}
	for i, point := range result.Points {
		if i%step != 0 && i != len(result.Points)-1 {
			continue
		}
		fmt.Printf("t=%.3f x=%.4f th1=%.4f th2=%.4f u=%.3f sigma=%.4f\n",
			point.T, point.State[0], point.State[1], point.State[2], point.Control, point.Sigma)
	}
	fmt.Printf("samples=%d unstable=%t\n", len(result.Points), result.Unstable)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "diptune.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	runs, err := client.Runs(ctx, tuneapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	for _, run := range runs {
		fmt.Printf("run_id=%s created_at=%s variant=%s seed=%d particles=%d iterations=%d status=%s best_cost=%.6f\n",
			run.RunID, run.CreatedAtUTC, run.Variant, run.Seed, run.Particles, run.Iterations, run.Status, run.BestCost)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	jsonOut := fs.Bool("json", false, "emit run detail as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "diptune.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("show requires --run-id or --latest")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	detail, err := client.Show(ctx, tuneapi.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	run := detail.Run
	fmt.Printf("run_id=%s created_at=%s variant=%s seed=%d particles=%d iterations=%d status=%s best_cost=%.6f\n",
		run.RunID, run.CreatedAtUTC, run.Variant, run.Seed, run.Particles, run.Iterations, run.Status, run.BestCost)
	if len(detail.Gains) > 0 {
		fmt.Printf("gains=%s\n", formatFloats(detail.Gains))
	}
	for i, best := range detail.History {
		fmt.Printf("iteration=%d best_cost=%.6f\n", i+1, best)
	}
	if detail.Summary != nil {
		fmt.Printf("validation samples=%d duration=%.2f unstable=%t max_abs_control=%.3f singularity_events=%d\n",
			detail.Summary.Samples, detail.Summary.Duration, detail.Summary.Unstable,
			detail.Summary.MaxAbsControl, detail.Summary.SingularityEvents)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "output directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "diptune.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.Export(ctx, tuneapi.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func runVariants(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("variants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient("memory", "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, name := range client.Variants() {
		fmt.Println(name)
	}
	return nil
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		values = append(values, v)
	}
	return values, nil
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
