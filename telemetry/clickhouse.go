package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/tebeka/atexit"
)

// taskRow mirrors the trace task entries that the tracing package inserts.
// The tracing package sits above this one in the import graph, so its rows
// arrive as plain structs and are converted through reflection.
type taskRow struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

// sessionRow mirrors the trace session index entries.
type sessionRow struct {
	TableName    string
	SessionStart float64
	SessionEnd   float64
}

type tableKind int

const (
	tableKindRunInfo tableKind = iota
	tableKindTick
	tableKindSystem
	tableKindTask
	tableKindSession
)

// clickhouseRecorder is a Recorder over the ClickHouse native protocol. It
// keeps a typed batch per table so that inserting stays reflection-free for
// the rows this package produces.
type clickhouseRecorder struct {
	mu sync.Mutex

	conn      clickhouse.Conn
	batchSize int

	tables     map[string]tableKind
	entryCount int

	runInfoBatches map[string][]runInfo
	tickBatches    map[string][]TickSample
	systemBatches  map[string][]SystemSample
	taskBatches    map[string][]taskRow
	sessionBatches map[string][]sessionRow
}

// NewClickHouse creates a Recorder that writes into a ClickHouse database.
// Unlike the SQLite recorder, it only accepts the row shapes this package
// and the tracing package produce. It panics if the server is unreachable.
func NewClickHouse(
	host string,
	port int,
	database string,
	username string,
	password string,
	batchSize int,
) Recorder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      time.Second * 30,
		MaxOpenConns:     5,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		BlockBufferSize:  10,
	})
	if err != nil {
		panic(fmt.Errorf("failed to connect to ClickHouse: %w", err))
	}

	if err := conn.Ping(context.Background()); err != nil {
		panic(fmt.Errorf("failed to ping ClickHouse: %w", err))
	}

	r := &clickhouseRecorder{
		conn:      conn,
		batchSize: batchSize,

		tables: make(map[string]tableKind),

		runInfoBatches: make(map[string][]runInfo),
		tickBatches:    make(map[string][]TickSample),
		systemBatches:  make(map[string][]SystemSample),
		taskBatches:    make(map[string][]taskRow),
		sessionBatches: make(map[string][]sessionRow),
	}

	atexit.Register(func() { r.Flush() })

	return r
}

// CreateTable creates a MergeTree table for one of the known row shapes.
func (r *clickhouseRecorder) CreateTable(tableName string, sampleEntry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, kind := schemaFor(tableName, sampleEntry)

	err := r.conn.Exec(context.Background(), schema)
	if err != nil {
		panic(fmt.Errorf("failed to create table %s: %w", tableName, err))
	}

	r.tables[tableName] = kind
}

func schemaFor(tableName string, sample any) (string, tableKind) {
	switch sample.(type) {
	case runInfo:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				Property String,
				Value String
			) ENGINE = MergeTree()
			ORDER BY Property
		`, tableName), tableKindRunInfo

	case TickSample:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				Tick UInt64,
				Time Float64,
				WallTime Float64,
				Ran Int32,
				Skipped Int32,
				Failed Int32,
				Error String
			) ENGINE = MergeTree()
			ORDER BY Tick
		`, tableName), tableKindTick

	case SystemSample:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				Tick UInt64,
				Stage Int32,
				Name String,
				Status String,
				Detail String
			) ENGINE = MergeTree()
			ORDER BY (Tick, Name)
		`, tableName), tableKindSystem
	}

	// Trace rows are defined in the tracing package and recognized here by
	// type name.
	typeName := fmt.Sprintf("%T", sample)

	if strings.Contains(typeName, "taskEntry") {
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				ID String,
				ParentID String,
				Kind String,
				What String,
				Location String,
				StartTime Float64,
				EndTime Float64
			) ENGINE = MergeTree()
			ORDER BY (StartTime, ID)
		`, tableName), tableKindTask
	}

	if strings.Contains(typeName, "sessionEntry") {
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				TableName String,
				SessionStart Float64,
				SessionEnd Float64
			) ENGINE = MergeTree()
			ORDER BY SessionStart
		`, tableName), tableKindSession
	}

	panic(fmt.Sprintf("unsupported ClickHouse table type: %T", sample))
}

// InsertData appends one entry to its table's batch. The batches flush
// automatically once the total buffered entry count reaches the batch size.
func (r *clickhouseRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()

	kind, ok := r.tables[tableName]
	if !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	switch kind {
	case tableKindRunInfo:
		r.runInfoBatches[tableName] =
			append(r.runInfoBatches[tableName], entry.(runInfo))
	case tableKindTick:
		r.tickBatches[tableName] =
			append(r.tickBatches[tableName], entry.(TickSample))
	case tableKindSystem:
		r.systemBatches[tableName] =
			append(r.systemBatches[tableName], entry.(SystemSample))
	case tableKindTask:
		r.taskBatches[tableName] =
			append(r.taskBatches[tableName], extractTaskRow(entry))
	case tableKindSession:
		r.sessionBatches[tableName] =
			append(r.sessionBatches[tableName], extractSessionRow(entry))
	}

	r.entryCount++
	full := r.entryCount >= r.batchSize

	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// ListTables returns the names of all the tables created so far.
func (r *clickhouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tableNames := make([]string, 0, len(r.tables))
	for name := range r.tables {
		tableNames = append(tableNames, name)
	}

	return tableNames
}

// Flush sends every non-empty batch to the server.
func (r *clickhouseRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entryCount == 0 {
		return
	}

	ctx := context.Background()

	for tableName, kind := range r.tables {
		switch kind {
		case tableKindRunInfo:
			r.flushRunInfo(ctx, tableName)
		case tableKindTick:
			r.flushTicks(ctx, tableName)
		case tableKindSystem:
			r.flushSystems(ctx, tableName)
		case tableKindTask:
			r.flushTasks(ctx, tableName)
		case tableKindSession:
			r.flushSessions(ctx, tableName)
		}
	}

	r.entryCount = 0
}

func (r *clickhouseRecorder) flushRunInfo(ctx context.Context, tableName string) {
	entries := r.runInfoBatches[tableName]
	if len(entries) == 0 {
		return
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		panic(fmt.Errorf("failed to prepare batch for %s: %w", tableName, err))
	}

	for _, e := range entries {
		err = batch.Append(e.Property, e.Value)
		if err != nil {
			panic(fmt.Errorf("failed to append to batch: %w", err))
		}
	}

	mustSendBatch(batch)

	r.runInfoBatches[tableName] = entries[:0]
}

func (r *clickhouseRecorder) flushTicks(ctx context.Context, tableName string) {
	entries := r.tickBatches[tableName]
	if len(entries) == 0 {
		return
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		panic(fmt.Errorf("failed to prepare batch for %s: %w", tableName, err))
	}

	for _, e := range entries {
		err = batch.Append(
			e.Tick, e.Time, e.WallTime,
			e.Ran, e.Skipped, e.Failed, e.Error,
		)
		if err != nil {
			panic(fmt.Errorf("failed to append to batch: %w", err))
		}
	}

	mustSendBatch(batch)

	r.tickBatches[tableName] = entries[:0]
}

func (r *clickhouseRecorder) flushSystems(ctx context.Context, tableName string) {
	entries := r.systemBatches[tableName]
	if len(entries) == 0 {
		return
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		panic(fmt.Errorf("failed to prepare batch for %s: %w", tableName, err))
	}

	for _, e := range entries {
		err = batch.Append(e.Tick, e.Stage, e.Name, e.Status, e.Detail)
		if err != nil {
			panic(fmt.Errorf("failed to append to batch: %w", err))
		}
	}

	mustSendBatch(batch)

	r.systemBatches[tableName] = entries[:0]
}

func (r *clickhouseRecorder) flushTasks(ctx context.Context, tableName string) {
	entries := r.taskBatches[tableName]
	if len(entries) == 0 {
		return
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		panic(fmt.Errorf("failed to prepare batch for %s: %w", tableName, err))
	}

	for _, e := range entries {
		err = batch.Append(
			e.ID, e.ParentID, e.Kind, e.What, e.Location,
			e.StartTime, e.EndTime,
		)
		if err != nil {
			panic(fmt.Errorf("failed to append to batch: %w", err))
		}
	}

	mustSendBatch(batch)

	r.taskBatches[tableName] = entries[:0]
}

func (r *clickhouseRecorder) flushSessions(ctx context.Context, tableName string) {
	entries := r.sessionBatches[tableName]
	if len(entries) == 0 {
		return
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		panic(fmt.Errorf("failed to prepare batch for %s: %w", tableName, err))
	}

	for _, e := range entries {
		err = batch.Append(e.TableName, e.SessionStart, e.SessionEnd)
		if err != nil {
			panic(fmt.Errorf("failed to append to batch: %w", err))
		}
	}

	mustSendBatch(batch)

	r.sessionBatches[tableName] = entries[:0]
}

func mustSendBatch(batch interface{ Send() error }) {
	err := batch.Send()
	if err != nil {
		panic(fmt.Errorf("failed to send batch: %w", err))
	}
}

// Close flushes the remaining entries and closes the connection.
func (r *clickhouseRecorder) Close() error {
	r.Flush()

	err := r.conn.Close()
	if err != nil {
		return fmt.Errorf("failed to close ClickHouse connection: %w", err)
	}

	return nil
}
