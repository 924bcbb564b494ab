// Package telemetry records engine run data into SQLite or ClickHouse
// databases and reads it back for inspection.
package telemetry

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tebeka/atexit"
)

// Recorder is a backend that can record and store data.
type Recorder interface {
	// CreateTable creates a new table that stores entries shaped like
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one entry into a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns a slice containing the names of all the tables.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes the remaining entries and closes the database.
	Close() error
}

// RecorderConfig selects and configures a recorder backend.
type RecorderConfig struct {
	// Type is either "sqlite" or "clickhouse". An empty Type means SQLite.
	Type string

	// Path is the SQLite output path, without the .sqlite3 suffix. An empty
	// Path generates a unique file name.
	Path string

	// ConnStr configures ClickHouse in one string, in the form
	// clickhouse://host:port/database?username=u&password=p. When set, it
	// takes precedence over the individual fields below.
	ConnStr string

	Host     string
	Port     int
	Database string
	Username string
	Password string

	// BatchSize is the number of buffered entries that triggers an
	// automatic flush. Zero means 100000.
	BatchSize int
}

// New creates a Recorder that writes into a SQLite file at path. An empty
// path generates a unique file name. It panics if the file already exists.
func New(path string) Recorder {
	return newSQLiteRecorder(path, defaultBatchSize)
}

// NewWithDB creates a SQLite Recorder over an already-open database handle.
func NewWithDB(db *sql.DB) Recorder {
	r := &sqliteRecorder{
		DB:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*recorderTable),
	}

	atexit.Register(func() { r.Flush() })

	return r
}

// NewWithConfig creates a Recorder for the backend the config selects.
func NewWithConfig(cfg RecorderConfig) Recorder {
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}

	switch cfg.Type {
	case "", "sqlite":
		return newSQLiteRecorder(cfg.Path, batchSize)
	case "clickhouse":
		if cfg.ConnStr != "" {
			parsed, err := parseClickHouseConnStr(cfg.ConnStr)
			if err != nil {
				panic(err)
			}

			cfg = parsed
		}

		return NewClickHouse(
			cfg.Host, cfg.Port,
			cfg.Database, cfg.Username, cfg.Password,
			batchSize,
		)
	default:
		panic(fmt.Sprintf("unknown recorder type %q", cfg.Type))
	}
}

// parseClickHouseConnStr splits a connection string of the form
// clickhouse://host:port/database?username=u&password=p into config fields.
// The port defaults to 9000 when omitted.
func parseClickHouseConnStr(connStr string) (RecorderConfig, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return RecorderConfig{}, fmt.Errorf("invalid connection string: %w", err)
	}

	if u.Scheme != "clickhouse" {
		return RecorderConfig{}, fmt.Errorf(
			"connection string must use the clickhouse scheme, got %q",
			u.Scheme)
	}

	cfg := RecorderConfig{
		Type:     "clickhouse",
		Host:     u.Hostname(),
		Port:     9000,
		Database: strings.TrimPrefix(u.Path, "/"),
		Username: u.Query().Get("username"),
		Password: u.Query().Get("password"),
	}

	if p := u.Port(); p != "" {
		cfg.Port, err = strconv.Atoi(p)
		if err != nil {
			return RecorderConfig{}, fmt.Errorf(
				"invalid port in connection string: %w", err)
		}
	}

	return cfg, nil
}
