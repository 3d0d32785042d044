package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/connector"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/internal/loader"
	"github.com/vitebski/form-schema-synth/internal/pipeline"
	"github.com/vitebski/form-schema-synth/internal/store"
	"github.com/vitebski/form-schema-synth/internal/utils"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

func main() {
	var (
		host         string
		user         string
		password     string
		database     string
		port         string
		strategyName string
		schemaName   string
		output       string
		mappingDir   string
		enrichedDir  string
		sampleDir    string
		samples      int
		seed         int64
		storePath    string
		concurrency  int
		envFile      string
		logLevel     string
		analyzeOnly  bool
		deploy       bool
	)

	rootCmd := &cobra.Command{
		Use:   "formschema [flags] <form.json|dir>...",
		Short: "A tool to synthesize SQL Server schemas from form definitions",
		Long: `Form Schema Synthesizer

A Go tool that turns hierarchical form definitions into SQL Server tables,
lookup tables, stored procedures and views, and records which database
objects every form field was mapped to.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			// Setup logging
			logger := utils.SetupLogging(logLevel)

			// Load environment variables
			utils.LoadEnvironmentVariables(envFile, logger)

			// The strategy is never defaulted
			strategy, err := models.ParseStrategy(strategyName)
			if err != nil {
				logger.Errorf("Invalid --strategy: %v", err)
				os.Exit(1)
			}
			if schemaName == "" {
				schemaName = os.Getenv("FORMSCHEMA_SCHEMA")
			}
			if concurrency <= 0 {
				concurrency = utils.GetEnvInt("FORMSCHEMA_CONCURRENCY", pipeline.DefaultConcurrency)
			}
			opts := layout.Options{SchemaName: schemaName}

			// Load forms
			formLoader, err := loader.New(logger)
			if err != nil {
				logger.Errorf("Failed to prepare form loader: %v", err)
				os.Exit(1)
			}
			forms, err := formLoader.LoadPaths(args)
			if err != nil {
				logger.Errorf("Failed to load forms: %v", err)
				os.Exit(1)
			}

			// If analyze-only mode, print the analysis and exit here
			if analyzeOnly {
				schemaAnalyzer := analyzer.NewSchemaAnalyzer(logger)
				failed := false
				for _, form := range forms {
					g, err := schemaAnalyzer.Analyze(form)
					if err != nil {
						logger.Errorf("Failed to analyze form %q: %v", form.Name, err)
						failed = true
						continue
					}
					utils.PrintSchemaAnalysis(os.Stdout, g, layout.PlanFlat(g, opts))
				}
				if failed {
					os.Exit(1)
				}
				return
			}

			ctx := cmd.Context()
			synthesizer := pipeline.NewSynthesizer(opts, concurrency, logger)
			batch, err := synthesizer.SynthesizeBatch(ctx, forms, strategy)
			if err != nil {
				logger.Errorf("Synthesis failed: %v", err)
				os.Exit(1)
			}

			// Reports go to stderr when the script itself goes to stdout
			var report io.Writer = os.Stdout
			if output == "" || output == "-" {
				report = os.Stderr
			}

			success := len(batch.Summary.Failed) == 0
			if err := writeScript(output, batch.Scripts.Text()); err != nil {
				logger.Errorf("Failed to write script: %v", err)
				success = false
			}
			if mappingDir != "" {
				if err := writeMappings(mappingDir, batch.Results); err != nil {
					logger.Errorf("Failed to write mappings: %v", err)
					success = false
				}
			}
			if sampleDir != "" {
				if err := writeSamples(sampleDir, batch.Results, opts, samples, seed, logger); err != nil {
					logger.Errorf("Failed to write sample submissions: %v", err)
					success = false
				}
			}

			if deploy {
				// Get connection parameters from environment if not provided
				db := connector.NewDatabaseConnector(host, user, password, database, port, logger)
				if !utils.ValidateConnectionParams(db.Host, db.User, db.Password, db.Database, db.Port, logger) {
					os.Exit(1)
				}
				if err := db.Connect(ctx); err != nil {
					logger.Errorf("Failed to connect to database: %v", err)
					os.Exit(1)
				}
				defer db.Disconnect()

				if storePath != "" {
					mappingStore, err := store.Open(ctx, storePath, logger)
					if err != nil {
						logger.Errorf("Failed to open mapping store: %v", err)
						os.Exit(1)
					}
					defer mappingStore.Close()
					synthesizer.Store = mappingStore
				}

				if !deployAll(ctx, synthesizer, db, batch.Results, enrichedDir, report) {
					success = false
				}
			}

			// Print summary
			utils.PrintSummary(report, batch.Summary)

			// Return appropriate exit code
			if !success {
				os.Exit(1)
			}
		},
	}

	// Define flags
	rootCmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "Generation strategy: flat or normalized (required)")
	rootCmd.Flags().StringVar(&schemaName, "schema", "", "Database schema for generated objects (default: dbo)")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "Write the merged script to this file (default: stdout)")
	rootCmd.Flags().StringVar(&mappingDir, "mapping-dir", "", "Write one deployment mapping JSON file per form to this directory")
	rootCmd.Flags().StringVar(&sampleDir, "sample-dir", "", "Write scripts that submit sample data through the generated procedures to this directory")
	rootCmd.Flags().IntVar(&samples, "samples", 3, "Number of sample submissions per form")
	rootCmd.Flags().Int64Var(&seed, "seed", 1, "Seed for sample data generation")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Number of forms synthesized in parallel (default: 4)")
	rootCmd.Flags().BoolVarP(&analyzeOnly, "analyze-only", "a", false, "Only analyze the forms without generating scripts")
	rootCmd.Flags().BoolVar(&deploy, "deploy", false, "Execute the scripts of every form against SQL Server")
	rootCmd.Flags().StringVar(&enrichedDir, "enriched-dir", "", "Write each deployed form, enriched with its mapping, to this directory")
	rootCmd.Flags().StringVar(&storePath, "store", "", "SQLite file that keeps the mapping of every deployed form")
	rootCmd.Flags().StringVarP(&host, "host", "H", "", "SQL Server host (default: localhost)")
	rootCmd.Flags().StringVarP(&user, "user", "u", "", "SQL Server user (default: sa)")
	rootCmd.Flags().StringVarP(&password, "password", "p", "", "SQL Server password")
	rootCmd.Flags().StringVarP(&database, "database", "d", "", "SQL Server database name")
	rootCmd.Flags().StringVarP(&port, "port", "P", "", "SQL Server port (default: 1433)")
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newMappingsCommand(&logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// newMappingsCommand lists the mappings kept in a store.
func newMappingsCommand(logLevel *string) *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List the deployment mappings kept in a mapping store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := utils.SetupLogging(*logLevel)
			mappingStore, err := store.Open(cmd.Context(), storePath, logger)
			if err != nil {
				return err
			}
			defer mappingStore.Close()

			entries, err := mappingStore.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No mappings stored")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-14s %s  %s\n", e.FormName, e.Strategy, e.Checksum, e.SavedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "formschema.db", "SQLite mapping store")
	return cmd
}
