package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dataguard/adapters/alerting"
	"dataguard/adapters/excel"
	"dataguard/adapters/postgres"
	"dataguard/app"
	"dataguard/internal/config"
	"dataguard/internal/detector"
	"dataguard/internal/drift"
	"dataguard/internal/registry"
	"dataguard/internal/rules"
	"dataguard/ports"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dataguard",
		Short: "Data contract enforcement: schema drift, quality rules and anomaly detection",
	}
	rootCmd.AddCommand(newAssessCmd(), newVersionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAssessCmd() *cobra.Command {
	var (
		tableID        string
		rulesPath      string
		sheet          string
		timestampField string
		jsonOut        bool
	)

	cmd := &cobra.Command{
		Use:   "assess [batch-file]",
		Short: "Assess one batch file against its data contract",
		Long: `Assess a batch snapshot (.xlsx or .csv) against the table's registered
schema and quality rules, run anomaly detection, and print the merged
quality report. The process exits non-zero when the batch fails its
quality gate.

The schema registry is in-memory unless DATABASE_URL points at a
PostgreSQL instance.

Example: dataguard assess orders.xlsx --table orders --rules rules.yaml --timestamp-field created_at`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssess(cmd.Context(), args[0], tableID, rulesPath, sheet, timestampField, jsonOut)
		},
	}

	cmd.Flags().StringVar(&tableID, "table", "", "Table identifier in the schema registry (required)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML rule file to load into the rule engine")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet name for .xlsx files (default Sheet1)")
	cmd.Flags().StringVar(&timestampField, "timestamp-field", "", "Timestamp field for temporal anomaly detection")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full report as JSON")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions [table-id]",
		Short: "List registered schema versions for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(cmd.Context(), args[0])
		},
	}
	return cmd
}

func runAssess(ctx context.Context, batchFile, tableID, rulesPath, sheet, timestampField string, jsonOut bool) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := openStore(ctx, log)
	if err != nil {
		return err
	}

	ruleEngine := rules.NewEngine(cfg.Scoring, log)
	if rulesPath != "" {
		loaded, err := config.LoadRules(rulesPath)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		if err := ruleEngine.RegisterAll(loaded); err != nil {
			return fmt.Errorf("registering rules: %w", err)
		}
		log.Info("rules loaded", zap.String("file", rulesPath), zap.Int("count", len(loaded)))
	}

	service := app.NewAssessmentService(
		drift.New(store, log),
		ruleEngine,
		detector.NewEngine(cfg.Anomaly, detector.MahalanobisScorer{}, log),
		alerting.NewLogSink(log),
		alerting.NewLogNotifier(log),
		cfg,
		log,
	)

	ds, err := excel.NewBatchReader(batchFile, sheet, log).Read()
	if err != nil {
		return fmt.Errorf("reading batch: %w", err)
	}

	report, err := service.AssessBatch(ctx, tableID, ds, timestampField)
	if err != nil {
		return fmt.Errorf("assessment: %w", err)
	}

	if jsonOut {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Println(string(out))
	} else {
		printSummary(report.TableID, report.OverallScore, string(report.Drift.Action), len(report.Issues), len(report.Anomalies), report.Passed)
	}

	if !report.Passed {
		os.Exit(2)
	}
	return nil
}

func runVersions(ctx context.Context, tableID string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	store, err := openStore(ctx, log)
	if err != nil {
		return err
	}

	versions, err := store.ListVersions(ctx, tableID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	if len(versions) == 0 {
		fmt.Printf("no versions registered for %s\n", tableID)
		return nil
	}
	for _, v := range versions {
		marker := " "
		if v.IsActive {
			marker = "*"
		}
		fmt.Printf("%s v%d  %s  %d fields\n", marker, v.Version, v.RegisteredAt.Format("2006-01-02 15:04:05"), len(v.Fields))
	}
	return nil
}

// openStore returns the postgres-backed registry when DATABASE_URL is
// set, the in-memory one otherwise.
func openStore(ctx context.Context, log *zap.Logger) (ports.SchemaStore, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Info("DATABASE_URL not set, using in-memory schema registry")
		return registry.NewMemoryStore(), nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to registry database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return postgres.NewSchemaStore(db), nil
}

func printSummary(tableID string, score float64, action string, issues, anomalies int, passed bool) {
	verdict := "PASSED"
	if !passed {
		verdict = "FAILED"
	}
	fmt.Printf("table:      %s\n", tableID)
	fmt.Printf("score:      %.1f\n", score)
	fmt.Printf("drift:      %s\n", action)
	fmt.Printf("issues:     %d\n", issues)
	fmt.Printf("anomalies:  %d\n", anomalies)
	fmt.Printf("gate:       %s\n", verdict)
}
