package utils

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/livebydesign2/supa-seed-sub002/internal/mapper"
	"github.com/livebydesign2/supa-seed-sub002/internal/orchestrator"
	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	logger := logrus.New()

	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("SEED_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	return logger
}

// LoadEnvironmentVariables loads environment variables from a .env file
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Infof("No %s file found, using existing environment variables", envFile)
	}

	requiredVars := []string{"SEED_DB_HOST", "SEED_DB_USER", "SEED_DB_DATABASE"}
	var missingVars []string
	for _, v := range requiredVars {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Warningf("Missing required environment variables: %s", strings.Join(missingVars, ", "))
		logger.Info("These can be provided via command line arguments, environment variables, or a .env file")
		return false
	}

	return true
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(driver, host, user, database, port string, logger *logrus.Logger) bool {
	if driver != "mysql" && driver != "postgres" {
		logger.Errorf("Unsupported driver: %s", driver)
		return false
	}
	if host == "" {
		logger.Error("Database host is required")
		return false
	}
	if user == "" {
		logger.Error("Database user is required")
		return false
	}
	if database == "" {
		logger.Error("Database name is required")
		return false
	}
	if port == "" {
		logger.Error("Database port is required")
		return false
	}
	return true
}

// PrintSchemaAnalysis prints a detailed report of the analyzed schema
func PrintSchemaAnalysis(analysis *orchestrator.SchemaAnalysis) {
	snapshot := analysis.Snapshot
	graph := analysis.Graph

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SCHEMA ANALYSIS REPORT")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("\n1. BASIC STATISTICS")
	fmt.Printf("   Framework: %s (confidence %.2f)\n", snapshot.Framework, snapshot.Confidence)
	fmt.Printf("   Fingerprint: %s\n", shorten(snapshot.Fingerprint))
	fmt.Printf("   Total tables: %d\n", len(snapshot.Tables))
	fmt.Printf("   Relationships: %d\n", len(snapshot.Relationships))
	fmt.Printf("   Dependency cycles: %d\n", len(graph.Cycles))

	if len(graph.Cycles) > 0 {
		fmt.Println("\n2. CIRCULAR DEPENDENCIES")
		for _, cycle := range graph.Cycles {
			fmt.Printf("   %s\n", strings.Join(cycle.Tables, " -> "))
			fmt.Printf("     break: %s.%s (%s)\n",
				cycle.BreakPoint.FromTable, cycle.BreakPoint.Column, cycle.BreakPoint.Strategy)
		}
	}

	fmt.Println("\n3. SEEDING ORDER")
	for i, table := range graph.SeedingOrder {
		fmt.Printf("   %3d. %s (level %d, %s)\n",
			i+1, table, graph.DependencyLevels[table], graph.SeedingStrategies[table])
	}

	fmt.Println("\n4. COLUMN MAPPINGS")
	var tables []string
	for table := range analysis.ColumnMaps {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		cm := analysis.ColumnMaps[table]
		fmt.Printf("   %s (role %s, confidence %.2f)\n", table, cm.Role, cm.Confidence)
		for _, m := range cm.Mappings {
			fmt.Printf("     %-12s -> %-20s %.2f\n", m.SemanticField, m.ActualColumn, m.Confidence)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
}

// WriteMappingExport writes the resolved column mappings as a yaml
// fragment that slots into a seed-config file's mapping section
func WriteMappingExport(path string, analysis *orchestrator.SchemaAnalysis) error {
	maps := make([]*models.TableColumnMap, 0, len(analysis.ColumnMaps))
	for _, cm := range analysis.ColumnMaps {
		maps = append(maps, cm)
	}
	doc := map[string]interface{}{
		"mapping": map[string]interface{}{
			"custom_mappings": mapper.ExportMappings(maps),
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding mappings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// PrintCreationResult prints a summary of one creation request
func PrintCreationResult(result *models.CreationResult) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("CREATION RESULT")
	fmt.Println(strings.Repeat("=", 50))

	if result.Success {
		fmt.Println("Status: SUCCESS")
		fmt.Printf("Generated id: %s\n", result.GeneratedID)
	} else {
		fmt.Println("Status: FAILED")
		fmt.Printf("Error: %s\n", result.Error)
	}

	if len(result.FallbacksTriggered) > 0 {
		fmt.Printf("Fallbacks triggered: %s\n", strings.Join(result.FallbacksTriggered, ", "))
	}
	if result.Workflow != nil {
		fmt.Printf("Workflow steps: %d (primary table %s)\n",
			len(result.Workflow.Steps), result.Workflow.Metadata.PrimaryTable)
	}
	if result.Execution != nil {
		fmt.Printf("Completed steps: %d\n", len(result.Execution.CompletedSteps))
		if result.Execution.RollbackRequired {
			fmt.Printf("Rollback completed: %t\n", result.Execution.RollbackCompleted)
		}
	}
	if len(result.AppliedFixes) > 0 {
		fmt.Println("Applied fixes:")
		for _, fix := range result.AppliedFixes {
			fmt.Printf("  - %s on %s (%s)\n", fix.Strategy, fix.Field, fix.Rule)
		}
	}

	fmt.Printf("Timings: introspect=%s build=%s execute=%s total=%s\n",
		result.Timings.Introspection, result.Timings.Build,
		result.Timings.Execution, result.Timings.Total)

	if len(result.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range result.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}

	fmt.Println(strings.Repeat("=", 50))
}

// PrintWorkflow prints a dry-run view of a built workflow
func PrintWorkflow(wf *models.UserCreationWorkflow) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("WORKFLOW %s (table %s)\n", shorten(wf.ID), wf.Metadata.PrimaryTable)
	fmt.Println(strings.Repeat("=", 50))
	for i, step := range wf.Steps {
		deps := "-"
		if len(step.Dependencies) > 0 {
			deps = strings.Join(step.Dependencies, ", ")
		}
		fmt.Printf("%3d. %-22s %-20s onError=%-8s deps: %s\n",
			i+1, step.ID, step.Type, step.OnError, deps)
	}
	fmt.Printf("Rollback steps: %d\n", len(wf.RollbackSteps))
	fmt.Println(strings.Repeat("=", 50))
}

func shorten(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
