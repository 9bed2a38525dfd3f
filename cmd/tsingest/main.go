// Command tsingest is a thin operator-facing CLI demonstrating the
// Interval Processor: it wires one demo processor (a ticker-keyed price
// series backed by a newline-delimited JSON file) to either backend store
// and runs a single collect or delete against it.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/collector/filecollector"
	"github.com/nholding/tsingest/internal/platform/awsclient"
	"github.com/nholding/tsingest/internal/processor"
	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/snapshot"
	"github.com/nholding/tsingest/internal/store"
	"github.com/nholding/tsingest/internal/store/postgres"
	"github.com/nholding/tsingest/internal/store/sqlite"
)

var (
	storeURL      string
	unitFlag      string
	createMissing bool
	actor         string
	dataFile      string
	ticker        string

	iamAuth    bool
	awsProfile string
	awsRegion  string
	dbEndpoint string
	dbUser     string
	dbName     string
	dbPort     int
	s3Bucket   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tsingest",
		Short: "Incremental, idempotent time-series ingestion over a Sparsity Map coverage cache",
	}

	root.PersistentFlags().StringVar(&storeURL, "store-url", "tsingest.db", "store connection string: a filesystem path for sqlite, or postgres://... for Postgres")
	root.PersistentFlags().StringVar(&unitFlag, "unit", "days", "calendar unit: days, months, or years")
	root.PersistentFlags().BoolVar(&createMissing, "create-missing", false, "create the data and metadata tables if they do not exist")
	root.PersistentFlags().StringVar(&actor, "actor", "", "identity recorded in the coverage row's audit trail")
	root.PersistentFlags().StringVar(&dataFile, "data", "", "path to the demo processor's newline-delimited JSON source file")
	root.PersistentFlags().StringVar(&ticker, "ticker", "", "ticker parameter identifying one coverage row")

	root.PersistentFlags().BoolVar(&iamAuth, "iam-auth", false, "connect to Postgres at --db-endpoint with a short-lived RDS IAM token, ignoring --store-url")
	root.PersistentFlags().StringVar(&awsProfile, "aws-profile", "", "named AWS credential profile (local/dev only)")
	root.PersistentFlags().StringVar(&awsRegion, "aws-region", "us-east-1", "AWS region for IAM-auth token generation and S3 access")
	root.PersistentFlags().StringVar(&dbEndpoint, "db-endpoint", "", "RDS endpoint host, required with --iam-auth")
	root.PersistentFlags().StringVar(&dbUser, "db-user", "", "IAM-enabled database user, required with --iam-auth")
	root.PersistentFlags().StringVar(&dbName, "db-name", "", "database name, required with --iam-auth")
	root.PersistentFlags().IntVar(&dbPort, "db-port", 5432, "RDS port")
	root.PersistentFlags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket backing the snapshot subcommand")

	root.AddCommand(newCollectCmd(), newDeleteCmd(), newSnapshotCmd())
	return root
}

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect <domain>",
		Short: "Collect the requested domain, skipping whatever is already covered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildDemoProcessor(cmd.Context())
			if err != nil {
				return err
			}
			run, err := p.Collect(cmd.Context(), actor, args[0], map[string]any{"ticker": ticker})
			printRun(run)
			return err
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <domain>",
		Short: "Delete the requested domain and shrink coverage to match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildDemoProcessor(cmd.Context())
			if err != nil {
				return err
			}
			run, err := p.Delete(cmd.Context(), actor, args[0], map[string]any{"ticker": ticker})
			printRun(run)
			return err
		},
	}
}

func printRun(run *processor.Run) {
	if run == nil {
		return
	}
	fmt.Printf("run %s: %d interval(s), %d row(s), %d failure(s)\n", run.RunID, len(run.Outcomes), run.TotalRows, run.Failures)
	for _, o := range run.Outcomes {
		if o.Err != nil {
			fmt.Printf("  %s %s..%s: %v\n", o.Kind, o.Interval.Start.Format("2006-01-02"), o.Interval.End.Format("2006-01-02"), o.Err)
			continue
		}
		fmt.Printf("  %s %s..%s: %d row(s)\n", o.Kind, o.Interval.Start.Format("2006-01-02"), o.Interval.End.Format("2006-01-02"), o.Rows)
	}
}

// demoDataSchema is the payload shape of the bundled file-collector demo:
// a daily close price and traded volume per ticker.
func demoDataSchema() schema.Schema {
	return schema.Schema{Columns: []schema.Column{
		{Name: "ts", Type: schema.Timestamp},
		{Name: "price", Type: schema.Real},
		{Name: "volume", Type: schema.Integer},
	}}
}

func demoParamSchema() schema.Schema {
	return schema.Schema{Columns: []schema.Column{
		{Name: "ticker", Type: schema.Text},
	}}
}

func buildDemoProcessor(ctx context.Context) (*processor.Processor, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("tsingest: logger: %w", err)
	}
	defer logger.Sync()

	unit := calendar.Unit(unitFlag)
	if _, err := calendar.For(unit); err != nil {
		return nil, fmt.Errorf("tsingest: %w", err)
	}

	st, err := openStore(ctx, storeURL)
	if err != nil {
		return nil, fmt.Errorf("tsingest: open store: %w", err)
	}

	desc := processor.Descriptor{
		Name:          "quotes",
		Unit:          unit,
		ParamSchema:   demoParamSchema(),
		DataSchema:    demoDataSchema(),
		TimeColumn:    "ts",
		CreateMissing: createMissing,
	}

	coll := &filecollector.Collector{
		Path:       dataFile,
		TimeColumn: "ts",
		DataSchema: demoDataSchema(),
	}

	return processor.New(ctx, desc, st, coll, logger)
}

func openStore(ctx context.Context, url string) (store.Store, error) {
	if iamAuth {
		dsn, err := rdsConfig().RDSAuthDSN(ctx)
		if err != nil {
			return nil, fmt.Errorf("tsingest: IAM-auth DSN: %w", err)
		}
		return postgres.Open(ctx, store.Global, dsn)
	}
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return postgres.Open(ctx, store.Global, url)
	}
	return sqlite.Open(ctx, store.Global, url)
}

func rdsConfig() *awsclient.Config {
	return &awsclient.Config{
		Profile:    awsProfile,
		Region:     awsRegion,
		S3Bucket:   s3Bucket,
		DBEndpoint: dbEndpoint,
		DBUser:     dbUser,
		DBName:     dbName,
		DBPort:     dbPort,
	}
}

// newSnapshotCmd groups the operational, non-automatic coverage backstop:
// exporting the demo processor's current coverage cache to S3, or fetching a
// previously exported key and printing its rows. Restore does not write the
// fetched rows back to the metadata table.
func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or restore a processor's coverage cache against S3",
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Upload the demo processor's current coverage cache to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := buildDemoProcessor(ctx)
			if err != nil {
				return err
			}
			exp, err := newExporter(ctx)
			if err != nil {
				return err
			}
			rows := snapshot.RowsFromCoverage(p.CoverageSnapshot())
			key, err := exp.Export(ctx, "quotes", rows, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("exported %d coverage row(s) to %s\n", len(rows), key)
			return nil
		},
	}

	var restoreKey string
	restore := &cobra.Command{
		Use:   "restore",
		Short: "Download a previously exported coverage snapshot and print its rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := newExporter(ctx)
			if err != nil {
				return err
			}
			rows, err := exp.Fetch(ctx, restoreKey)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%v\t%s\t%d items\n", r.Params, r.Domain, r.CollectedItems)
			}
			return nil
		},
	}
	restore.Flags().StringVar(&restoreKey, "key", "", "object key previously returned by 'snapshot export'")

	cmd.AddCommand(export, restore)
	return cmd
}

func newExporter(ctx context.Context) (*snapshot.Exporter, error) {
	cfg := rdsConfig()
	client, err := awsclient.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tsingest: S3 client: %w", err)
	}
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("tsingest: logger: %w", err)
	}
	return snapshot.NewExporter(client, cfg.S3Bucket, logger), nil
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("TSINGEST_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
