package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/livebydesign2/supa-seed-sub002/internal/config"
	"github.com/livebydesign2/supa-seed-sub002/internal/connector"
	"github.com/livebydesign2/supa-seed-sub002/internal/orchestrator"
	"github.com/livebydesign2/supa-seed-sub002/internal/utils"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

func main() {
	var (
		driver       string
		host         string
		user         string
		password     string
		database     string
		port         string
		envFile      string
		configFile   string
		logLevel     string
		primaryTable string
		email        string
		name         string
		username     string
		count        int
		exportPath   string
		analyzeOnly  bool
		dryRun       bool
		noValidation bool
		noAutoFixes  bool
		noRollback   bool
		noFallbacks  bool
		noCache      bool
	)

	rootCmd := &cobra.Command{
		Use:   "supa-seed",
		Short: "Schema-adaptive synthetic data seeder",
		Long: `supa-seed

Discovers how a live relational schema represents users and their
dependent entities, plans dependency-ordered creation workflows, and
executes them with constraint validation, auto-fixes, compensating
rollback, and graceful fallbacks.`,
		Run: func(cmd *cobra.Command, args []string) {
			logger := utils.SetupLogging(logLevel)
			utils.LoadEnvironmentVariables(envFile, logger)

			cfg := config.DefaultConfig()
			if configFile != "" {
				loaded, err := config.LoadFile(configFile)
				if err != nil {
					logger.Errorf("Failed to load config file: %v", err)
					os.Exit(1)
				}
				cfg = loaded
			}
			if primaryTable != "" {
				cfg.PrimaryTable = primaryTable
			}
			if noValidation {
				cfg.EnableValidation = false
			}
			if noAutoFixes {
				cfg.EnableAutoFixes = false
			}
			if noRollback {
				cfg.EnableRollback = false
			}
			if noFallbacks {
				cfg.EnableFallbacks = false
			}
			if noCache {
				cfg.EnableCaching = false
			}

			db := connector.NewDatabaseConnector(driver, host, user, password, database, port, logger)
			if !utils.ValidateConnectionParams(db.Driver, db.Host, db.User, db.Database, db.Port, logger) {
				os.Exit(1)
			}
			if err := db.Connect(); err != nil {
				logger.Errorf("Failed to connect to database: %v", err)
				os.Exit(1)
			}
			defer db.Disconnect()

			orch := orchestrator.New(db, cfg, logger)
			ctx := context.Background()

			analysis, err := orch.Analyze(ctx)
			if err != nil {
				logger.Errorf("Failed to analyze schema: %v", err)
				os.Exit(1)
			}
			utils.PrintSchemaAnalysis(analysis)

			if exportPath != "" {
				if err := utils.WriteMappingExport(exportPath, analysis); err != nil {
					logger.Errorf("Failed to export mappings: %v", err)
					os.Exit(1)
				}
				logger.Infof("Exported column mappings to %s", exportPath)
			}

			if analyzeOnly {
				logger.Info("Analyze-only mode, exiting without seeding")
				return
			}

			req := &models.CreationRequest{
				Email:    email,
				Name:     name,
				Username: username,
			}

			if dryRun {
				wf, err := orch.PlanWorkflow(ctx, req)
				if err != nil {
					logger.Errorf("Failed to plan workflow: %v", err)
					os.Exit(1)
				}
				utils.PrintWorkflow(wf)
				return
			}

			if count < 1 {
				count = 1
			}
			failed := 0
			for i := 0; i < count; i++ {
				// Independent requests; caller-supplied identity only applies once
				perReq := req
				if i > 0 {
					perReq = &models.CreationRequest{}
				}
				result := orch.CreateUser(ctx, perReq)
				utils.PrintCreationResult(result)
				if !result.Success {
					failed++
				}
			}

			if failed > 0 {
				logger.Errorf("%d of %d creation requests failed", failed, count)
				os.Exit(1)
			}
		},
	}

	rootCmd.Flags().StringVarP(&driver, "driver", "D", "", "Database driver: postgres or mysql (default: postgres)")
	rootCmd.Flags().StringVarP(&host, "host", "H", "", "Database host (default: localhost)")
	rootCmd.Flags().StringVarP(&user, "user", "u", "", "Database user")
	rootCmd.Flags().StringVarP(&password, "password", "p", "", "Database password")
	rootCmd.Flags().StringVarP(&database, "database", "d", "", "Database name")
	rootCmd.Flags().StringVarP(&port, "port", "P", "", "Database port")
	rootCmd.Flags().StringVarP(&envFile, "env-file", "e", ".env", "Path to .env file")
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to yaml seed-config file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVarP(&primaryTable, "table", "t", "", "Primary table override")
	rootCmd.Flags().StringVar(&email, "email", "", "Email for the created entity")
	rootCmd.Flags().StringVar(&name, "name", "", "Display name for the created entity")
	rootCmd.Flags().StringVar(&username, "username", "", "Username for the created entity")
	rootCmd.Flags().IntVarP(&count, "count", "n", 1, "Number of independent entities to create")
	rootCmd.Flags().StringVar(&exportPath, "export-mappings", "", "Write resolved column mappings to a yaml file")
	rootCmd.Flags().BoolVarP(&analyzeOnly, "analyze-only", "a", false, "Only analyze the schema without seeding")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build and print the workflow without executing it")
	rootCmd.Flags().BoolVar(&noValidation, "no-validation", false, "Disable constraint validation")
	rootCmd.Flags().BoolVar(&noAutoFixes, "no-auto-fixes", false, "Disable auto-fixes")
	rootCmd.Flags().BoolVar(&noRollback, "no-rollback", false, "Disable compensating rollback")
	rootCmd.Flags().BoolVar(&noFallbacks, "no-fallbacks", false, "Disable fallback strategies")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable schema caching")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
