package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"importkit/internal/config"
	"importkit/internal/graph"
	"importkit/internal/join"
	"importkit/internal/metrics"
	"importkit/internal/metrics/datadog"
	"importkit/internal/metrics/prompush"
	"importkit/internal/plan"
	"importkit/internal/source"
	"importkit/internal/store"

	// register all source connectors with the factory.
	// the config names which one to use but support for all is built in.
	_ "importkit/internal/source/all"
)

const usage = `usage: importkit <command> [flags]

commands:
  discover   test the connection and refresh the cached source schema
  validate   lint the stage graph and report all issues
  plan       compile the configuration into an ordered execution plan
  preview    sample a table or joined table
  relate     preview how two stages' rows match on a relationship
  save       store a configuration file in the local database
  list       list stored configurations

run "importkit <command> -h" for command flags.
`

// main dispatches subcommands acting on a configuration JSON file. Each
// command loads the file, does its work, and (for discover) writes the file
// back with the refreshed schema.
func main() {
	log.SetFlags(0)
	log.SetPrefix("importkit: ")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "discover":
		err = runDiscover(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "plan":
		err = runPlan(os.Args[2:])
	case "preview":
		err = runPreview(os.Args[2:])
	case "relate":
		err = runRelate(os.Args[2:])
	case "save":
		err = runSave(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// commonFlags are shared by every subcommand that reads a configuration file.
type commonFlags struct {
	cfgPath        string
	metricsBackend string
	pushgatewayURL string
	statsdAddr     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.cfgPath, "config", "importkit.json", "configuration JSON path")
	fs.StringVar(&c.metricsBackend, "metrics-backend", "", "metrics backend (pushgateway, datadog, none)")
	fs.StringVar(&c.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&c.statsdAddr, "statsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
}

func loadConfig(path string) (*config.ImportConfiguration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var c config.ImportConfiguration
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

func writeConfig(path string, c *config.ImportConfiguration) error {
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// setupMetrics installs the selected metrics backend. Selection order is
// flag, then env, then disabled. Returns a flush func for deferred use.
func setupMetrics(c commonFlags) func() {
	nop := func() {}

	name := c.metricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	switch name {
	case "pushgateway":
		url := c.pushgatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("importkit", url)
		if err != nil {
			log.Printf("metrics: pushgateway init failed: %v; metrics disabled", err)
			return nop
		}
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush: %v", err)
			}
		}

	case "datadog":
		addr := c.statsdAddr
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "importkit."})
		if err != nil {
			log.Printf("metrics: datadog init failed: %v; metrics disabled", err)
			return nop
		}
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush: %v", err)
			}
		}

	case "", "none":
		return nop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
		return nop
	}
}

func runDiscover(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	timeout := fs.Duration("timeout", 0, "override the source timeout")
	fs.Parse(args)
	defer setupMetrics(cf)()

	cfg, err := loadConfig(cf.cfgPath)
	if err != nil {
		return err
	}
	src := cfg.Source
	if *timeout > 0 {
		src.Timeout = *timeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), src.EffectiveTimeout())
	defer cancel()

	conn, err := source.Open(ctx, src)
	if err != nil {
		return err
	}
	defer conn.Close()

	start := time.Now()
	result, err := conn.TestConnection(ctx)
	metrics.RecordStep(cfg.Name, "test_connection", err, time.Since(start))
	cfg.MarkConnectionTested(err == nil)
	if err != nil {
		if werr := writeConfig(cf.cfgPath, cfg); werr != nil {
			log.Printf("%v", werr)
		}
		return fmt.Errorf("connection test: %w", err)
	}
	log.Printf("connection ok: %s", result.Message)
	if result.RecordCountEstimate >= 0 {
		log.Printf("estimated records: %d", result.RecordCountEstimate)
	}

	start = time.Now()
	snap, err := conn.DiscoverSchema(ctx)
	metrics.RecordStep(cfg.Name, "discover", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("schema discovery: %w", err)
	}

	if cfg.Schema != nil && cfg.Schema.Fingerprint() != snap.Fingerprint() {
		log.Printf("source schema changed since the last discovery; review table bindings")
	}
	cfg.Schema = snap
	if err := writeConfig(cf.cfgPath, cfg); err != nil {
		return err
	}
	log.Printf("discovered %d tables", len(snap.Tables))
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	fs.Parse(args)
	defer setupMetrics(cf)()

	cfg, err := loadConfig(cf.cfgPath)
	if err != nil {
		return err
	}

	start := time.Now()
	issues := graph.Validate(cfg)
	var nErr, nWarn int64
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == graph.SeverityError {
			nErr++
		} else {
			nWarn++
		}
	}
	metrics.RecordStep(cfg.Name, "validate", nil, time.Since(start))
	metrics.RecordIssues(cfg.Name, "error", nErr)
	metrics.RecordIssues(cfg.Name, "warning", nWarn)

	if nErr > 0 {
		return fmt.Errorf("configuration is invalid: %d error(s)", nErr)
	}
	log.Printf("configuration is valid (%d warning(s))", nWarn)
	return nil
}

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	out := fs.String("out", "", "write the plan JSON to this file instead of stdout")
	fs.Parse(args)
	defer setupMetrics(cf)()

	cfg, err := loadConfig(cf.cfgPath)
	if err != nil {
		return err
	}

	start := time.Now()
	p, err := plan.Compile(cfg)
	metrics.RecordStep(cfg.Name, "compile", err, time.Since(start))
	if err != nil {
		return err
	}

	enc, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if *out != "" {
		if err := os.WriteFile(*out, append(enc, '\n'), 0o644); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
		log.Printf("plan with %d steps written to %s", len(p.Steps), *out)
		return nil
	}
	fmt.Println(string(enc))
	return nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	table := fs.String("table", "", "table or joined-table name to sample")
	limit := fs.Int("n", 0, "sample size (default: configuration sample size)")
	fs.Parse(args)
	defer setupMetrics(cf)()

	if *table == "" {
		return fmt.Errorf("preview: -table is required")
	}
	cfg, err := loadConfig(cf.cfgPath)
	if err != nil {
		return err
	}
	n := *limit
	if n <= 0 {
		n = cfg.SampleSize
	}
	if n <= 0 {
		n = join.DefaultSampleSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.EffectiveTimeout())
	defer cancel()

	conn, err := source.Open(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		preview *source.Preview
		kind    = "table"
	)
	start := time.Now()
	if jt := cfg.JoinedTable(*table); jt != nil {
		kind = "join"
		preview, err = previewJoined(ctx, conn, cfg, jt, n)
	} else {
		preview, err = conn.PreviewTable(ctx, *table, n)
	}
	metrics.RecordStep(cfg.Name, "preview_"+kind, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("preview %s: %w", *table, err)
	}
	metrics.RecordPreviewRows(cfg.Name, kind, int64(len(preview.Rows)))

	printPreview(preview)
	return nil
}

// previewJoined asks the connector for a server-side join first and falls
// back to the local sampled engine when the source cannot join (flat files,
// REST) or the join fails for any reason.
func previewJoined(ctx context.Context, conn source.Connector, cfg *config.ImportConfiguration, jt *config.JoinedTableDefinition, n int) (*source.Preview, error) {
	p, err := conn.PreviewJoin(ctx, jt.PrimaryTable, jt.Joins, n)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, source.ErrJoinUnsupported) {
		log.Printf("server-side join failed (%v); using local sampled join", err)
	}

	if cfg.Schema == nil {
		return nil, fmt.Errorf("no cached schema; run discover first")
	}
	inputs, primaryCols, err := source.ResolveJoinInputs(cfg.Schema, jt.PrimaryTable, jt.Joins)
	if err != nil {
		return nil, err
	}
	primary, err := conn.PreviewTable(ctx, jt.PrimaryTable, n)
	if err != nil {
		return nil, err
	}
	for i := range inputs {
		sample, err := conn.PreviewTable(ctx, inputs[i].Clause.Table, n)
		if err != nil {
			return nil, err
		}
		inputs[i].Rows = sample.Rows
	}
	res, err := join.Compute(primaryCols, primary.Rows, inputs, n)
	if err != nil {
		return nil, err
	}
	return &source.Preview{Columns: res.Columns, Rows: res.Rows, TotalCount: -1}, nil
}

func printPreview(p *source.Preview) {
	enc, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		log.Printf("encode preview: %v", err)
		return
	}
	fmt.Println(string(enc))
}

func runRelate(args []string) error {
	fs := flag.NewFlagSet("relate", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	relID := fs.String("id", "", "relationship id to preview")
	limit := fs.Int("n", 0, "rows to sample per stage (default: configuration sample size)")
	fs.Parse(args)
	defer setupMetrics(cf)()

	if *relID == "" {
		return fmt.Errorf("relate: -id is required")
	}
	cfg, err := loadConfig(cf.cfgPath)
	if err != nil {
		return err
	}
	var rel *config.Relationship
	for i := range cfg.Relationships {
		if cfg.Relationships[i].ID == *relID {
			rel = &cfg.Relationships[i]
			break
		}
	}
	if rel == nil {
		return fmt.Errorf("relate: relationship %q not found", *relID)
	}
	from := cfg.StageByID(rel.FromStageID)
	to := cfg.StageByID(rel.ToStageID)
	if from == nil || to == nil {
		return fmt.Errorf("relate: relationship %q references a missing stage", *relID)
	}

	n := *limit
	if n <= 0 {
		n = cfg.SampleSize
	}
	if n <= 0 {
		n = join.DefaultSampleSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.EffectiveTimeout())
	defer cancel()

	conn, err := source.Open(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer conn.Close()

	start := time.Now()
	fromRows, err := conn.PreviewTable(ctx, from.SourceTable, n)
	if err != nil {
		return fmt.Errorf("sample %s: %w", from.SourceTable, err)
	}
	toRows, err := conn.PreviewTable(ctx, to.SourceTable, n)
	if err != nil {
		return fmt.Errorf("sample %s: %w", to.SourceTable, err)
	}
	res := join.MatchRelationship(fromRows.Rows, toRows.Rows, rel.SourceField, rel.TargetField)
	metrics.RecordStep(cfg.Name, "preview_relationship", nil, time.Since(start))

	enc, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(enc))
	return nil
}

func runSave(args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	dbPath := fs.String("db", "importkit.db", "configuration database path")
	fs.Parse(args)

	cfg, err := loadConfig(cf.cfgPath)
	if err != nil {
		return err
	}
	if issues := graph.Errors(graph.Validate(cfg)); len(issues) > 0 {
		for _, iss := range issues {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		}
		return fmt.Errorf("refusing to save: %d validation error(s)", len(issues))
	}

	ctx := context.Background()
	st, err := store.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Save(ctx, cfg); err != nil {
		return err
	}
	log.Printf("saved configuration %s (%s)", cfg.Name, cfg.ID)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dbPath := fs.String("db", "importkit.db", "configuration database path")
	fs.Parse(args)

	ctx := context.Background()
	st, err := store.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Printf("no stored configurations")
		return nil
	}
	for _, e := range entries {
		active := " "
		if e.Active {
			active = "*"
		}
		fmt.Printf("%s %-36s  %-24s  %s\n", active, e.ID, e.Name, e.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
