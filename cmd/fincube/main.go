/*
fincube - operator CLI for the financial cube core

Maintenance entrypoints that do not belong behind the API: historical cube
backfill, consistency validation and repair, cached-balance sync, cube
statistics, and cube clearing. Configuration comes from a TOML file with
flag overrides.

USAGE:
  fincube -tenant acme backfill -clear
  fincube -tenant acme validate
  fincube -tenant acme reconcile
  fincube -tenant acme sync -account <id>
  fincube -tenant acme stats
  fincube -tenant acme clear
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/phuslu/log"
	"github.com/warp/fincube/balance"
	"github.com/warp/fincube/cube"
	"github.com/warp/fincube/finance"
	"github.com/warp/fincube/store/sqlite"
)

type config struct {
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

func defaultConfig() config {
	var c config
	c.Database.Path = "./data/fincube.db"
	c.Log.Level = "info"
	return c
}

func loadConfig(path string) (config, error) {
	c := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

func main() {
	var (
		configPath = flag.String("config", "fincube.toml", "config file path")
		dbPath     = flag.String("db", "", "database path (overrides config)")
		tenantFlag = flag.String("tenant", "", "tenant id (required)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log.DefaultLogger = log.Logger{
		Level:  log.ParseLevel(cfg.Log.Level),
		Writer: &log.ConsoleWriter{ColorOutput: true, Writer: os.Stderr},
	}

	if *tenantFlag == "" {
		fmt.Fprintln(os.Stderr, "missing -tenant")
		usage()
		os.Exit(2)
	}
	tenant := finance.TenantID(*tenantFlag)

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to open store")
	}
	defer store.Close()

	ctx := context.Background()
	cubes := cube.New(store)

	switch cmd := flag.Arg(0); cmd {
	case "backfill":
		err = runBackfill(ctx, cubes, tenant, flag.Args()[1:])
	case "validate":
		err = runValidate(ctx, cubes, tenant)
	case "reconcile":
		err = cubes.Reconcile(ctx, tenant)
	case "sync":
		err = runSync(ctx, store, tenant, flag.Args()[1:])
	case "stats":
		err = runStats(ctx, cubes, tenant)
	case "clear":
		err = runClear(ctx, cubes, tenant)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fincube [-config file] [-db path] -tenant id <backfill|validate|reconcile|sync|stats|clear> [options]")
}

func runBackfill(ctx context.Context, cubes *cube.Engine, tenant finance.TenantID, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	var (
		startFlag = fs.String("start", "", "start date (YYYY-MM-DD, default: earliest posting)")
		endFlag   = fs.String("end", "", "end date (YYYY-MM-DD, default: latest posting)")
		clear     = fs.Bool("clear", false, "clear existing cells in range first")
		batch     = fs.Int("batch", 0, "periods per batch (default 100)")
		account   = fs.String("account", "", "restrict to one account")
	)
	fs.Parse(args)

	opts := cube.BackfillOptions{
		ClearExisting: *clear,
		BatchSize:     *batch,
		AccountID:     *account,
	}
	if *startFlag != "" {
		d, err := finance.ParseDate(*startFlag)
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		opts.Start = &d
	}
	if *endFlag != "" {
		d, err := finance.ParseDate(*endFlag)
		if err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
		opts.End = &d
	}

	result, err := cubes.PopulateHistorical(ctx, tenant, opts)
	if err != nil {
		return err
	}
	fmt.Printf("periods=%d cells=%d accounts=%d elapsed=%dms\n",
		result.PeriodsProcessed, result.CellsCreated, result.AccountsProcessed, result.ElapsedMs)
	return nil
}

func runValidate(ctx context.Context, cubes *cube.Engine, tenant finance.TenantID) error {
	consistent, err := cubes.ValidateConsistency(ctx, tenant)
	if err != nil {
		return err
	}
	if !consistent {
		fmt.Println("INCONSISTENT")
		return finance.ErrCubeInconsistent
	}
	fmt.Println("OK")
	return nil
}

func runSync(ctx context.Context, store *sqlite.Store, tenant finance.TenantID, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	account := fs.String("account", "", "account id (required)")
	fs.Parse(args)
	if *account == "" {
		return fmt.Errorf("missing -account")
	}

	result, err := balance.New(store).SyncAccountBalance(ctx, tenant, *account)
	if err != nil {
		return err
	}
	fmt.Printf("old=%s new=%s updated=%v\n", result.Old, result.New, result.Updated)
	return nil
}

func runStats(ctx context.Context, cubes *cube.Engine, tenant finance.TenantID) error {
	stats, err := cubes.Statistics(ctx, tenant)
	if err != nil {
		return err
	}

	fmt.Printf("cells=%d weekly=%d monthly=%d accounts=%d categories=%d\n",
		stats.TotalCells, stats.WeeklyCells, stats.MonthlyCells,
		stats.AccountCount, stats.CategoryCount)
	if stats.EarliestPeriod != nil && stats.LatestPeriod != nil {
		fmt.Printf("range=%s..%s\n", stats.EarliestPeriod, stats.LatestPeriod)
	}
	if stats.LastUpdated != nil {
		fmt.Printf("updated=%s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runClear(ctx context.Context, cubes *cube.Engine, tenant finance.TenantID) error {
	deleted, err := cubes.ClearAll(ctx, tenant)
	if err != nil {
		return err
	}
	fmt.Printf("deleted=%d\n", deleted)
	return nil
}
