package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Supported driver names
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// DatabaseConnector handles database connection and query execution
type DatabaseConnector struct {
	Driver   string
	Host     string
	User     string
	Password string
	Database string
	Port     string
	SSLMode  string
	DB       *sql.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a new database connector. Empty parameters
// fall back to SEED_DB_* environment variables.
func NewDatabaseConnector(driver, host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if driver == "" {
		driver = getEnvOrDefault("SEED_DB_DRIVER", DriverPostgres)
	}
	if host == "" {
		host = getEnvOrDefault("SEED_DB_HOST", "localhost")
	}
	if user == "" {
		user = getEnvOrDefault("SEED_DB_USER", "postgres")
	}
	if password == "" {
		password = getEnvOrDefault("SEED_DB_PASSWORD", "")
	}
	if database == "" {
		database = getEnvOrDefault("SEED_DB_DATABASE", "")
	}
	if port == "" {
		port = getEnvOrDefault("SEED_DB_PORT", defaultPort(driver))
	}

	return &DatabaseConnector{
		Driver:   driver,
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		SSLMode:  getEnvOrDefault("SEED_DB_SSLMODE", "disable"),
		Logger:   logger,
	}
}

func defaultPort(driver string) string {
	if driver == DriverMySQL {
		return "3306"
	}
	return "5432"
}

// DSN builds the driver-specific connection string
func (dc *DatabaseConnector) DSN() string {
	if dc.Driver == DriverMySQL {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", dc.User, dc.Password, dc.Host, dc.Port, dc.Database)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dc.Host, dc.Port, dc.User, dc.Password, dc.Database, dc.SSLMode)
}

// Placeholder returns the squirrel placeholder format for the active driver
func (dc *DatabaseConnector) Placeholder() sq.PlaceholderFormat {
	if dc.Driver == DriverPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// StatementBuilder returns a squirrel builder bound to the driver's placeholders
func (dc *DatabaseConnector) StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(dc.Placeholder())
}

// Connect establishes a connection to the database
func (dc *DatabaseConnector) Connect() error {
	if dc.Database == "" {
		return fmt.Errorf("database name must be provided either as an argument or as SEED_DB_DATABASE environment variable")
	}
	if dc.Driver != DriverMySQL && dc.Driver != DriverPostgres {
		return fmt.Errorf("unsupported driver %q", dc.Driver)
	}

	db, err := sql.Open(dc.Driver, dc.DSN())
	if err != nil {
		dc.Logger.Errorf("Error connecting to %s database: %v", dc.Driver, err)
		return err
	}

	if err := db.Ping(); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Driver, err)
		return err
	}

	dc.DB = db
	dc.Logger.Infof("Connected to %s database: %s", dc.Driver, dc.Database)
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		if err := dc.DB.Close(); err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Info("Database connection closed")
		}
	}
}

// ExecuteQuery executes a SQL query and returns the results as row maps
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return nil, err
		}
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			if val == nil {
				row[col] = nil
			} else if b, ok := val.([]byte); ok {
				// Text columns arrive as []byte from both drivers
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return 0, err
		}
	}

	result, err := dc.DB.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing statement: %v", err)
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		dc.Logger.Errorf("Error getting affected rows: %v", err)
		return 0, err
	}

	return affected, nil
}

// QueryExists runs a squirrel-built existence check and reports whether
// any row matched
func (dc *DatabaseConnector) QueryExists(ctx context.Context, builder sq.SelectBuilder) (bool, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("building existence query: %w", err)
	}

	rows, err := dc.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer value from an environment variable
func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
