package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// Recorded data lives in SQLite files.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

const defaultBatchSize = 100000

type recorderTable struct {
	structType reflect.Type
	entries    []any
}

// sqliteRecorder is the Recorder that writes data into a SQLite database.
type sqliteRecorder struct {
	*sql.DB
	statement *sql.Stmt

	dbName     string
	tables     map[string]*recorderTable
	batchSize  int
	entryCount int
}

func newSQLiteRecorder(path string, batchSize int) *sqliteRecorder {
	r := &sqliteRecorder{
		dbName:    path,
		batchSize: batchSize,
		tables:    make(map[string]*recorderTable),
	}

	r.init()

	atexit.Register(func() { r.Flush() })

	return r
}

// init creates the database file and establishes the connection.
func (r *sqliteRecorder) init() {
	if r.dbName == "" {
		r.dbName = "cadence_run_" + xid.New().String()
	}

	filename := r.dbName + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	r.DB = db
}

func isAllowedFieldKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16,
		reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64,
		reflect.String, reflect.Bool:
		return true
	default:
		return false
	}
}

func checkEntryFields(entry any) error {
	structType := reflect.TypeOf(entry)

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		kind := field.Type.Kind()
		if !isAllowedFieldKind(kind) {
			return fmt.Errorf(
				"field %s is a %s, entries must only carry scalar fields",
				field.Name, kind)
		}
	}

	return nil
}

// CreateTable creates a table whose columns are the fields of the sample
// entry. Entries must be flat structs of numbers, strings, and bools.
func (r *sqliteRecorder) CreateTable(tableName string, sampleEntry any) {
	err := checkEntryFields(sampleEntry)
	if err != nil {
		panic(err)
	}

	fields := strings.Join(structs.Names(sampleEntry), ", \n\t")

	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + fields + "\n" + `);`
	r.mustExecute(createTableSQL)

	r.tables[tableName] = &recorderTable{
		structType: reflect.TypeOf(sampleEntry),
		entries:    []any{},
	}
}

// InsertData buffers one entry. The buffer flushes automatically once the
// total buffered entry count reaches the batch size.
func (r *sqliteRecorder) InsertData(tableName string, entry any) {
	table, ok := r.tables[tableName]
	if !ok {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	table.entries = append(table.entries, entry)
	r.entryCount++

	if r.entryCount >= r.batchSize {
		r.Flush()
	}
}

// ListTables returns the names of all the tables created so far.
func (r *sqliteRecorder) ListTables() []string {
	tableNames := make([]string, 0, len(r.tables))
	for name := range r.tables {
		tableNames = append(tableNames, name)
	}

	return tableNames
}

// Flush writes all buffered entries into the database in one transaction.
func (r *sqliteRecorder) Flush() {
	if r.entryCount == 0 {
		return
	}

	r.mustExecute("BEGIN TRANSACTION")
	defer r.mustExecute("COMMIT TRANSACTION")

	for tableName, table := range r.tables {
		if len(table.entries) == 0 {
			continue
		}

		r.prepareStatement(tableName, table.structType)

		for _, entry := range table.entries {
			v := []any{}

			values := reflect.ValueOf(entry)
			for i := 0; i < values.NumField(); i++ {
				v = append(v, values.Field(i).Interface())
			}

			_, err := r.statement.Exec(v...)
			if err != nil {
				panic(err)
			}
		}

		table.entries = nil

		err := r.statement.Close()
		if err != nil {
			panic(err)
		}

		r.statement = nil
	}

	r.entryCount = 0
}

// Close flushes the remaining entries and closes the database file.
func (r *sqliteRecorder) Close() error {
	r.Flush()

	return r.DB.Close()
}

func (r *sqliteRecorder) mustExecute(query string) sql.Result {
	res, err := r.Exec(query)
	if err != nil {
		panic(query + "\n" + err.Error())
	}

	return res
}

func (r *sqliteRecorder) prepareStatement(table string, structType reflect.Type) {
	marks := make([]string, structType.NumField())
	for i := range marks {
		marks[i] = "?"
	}

	sqlStr := "INSERT INTO " + table +
		" VALUES (" + strings.Join(marks, ", ") + ")"

	stmt, err := r.Prepare(sqlStr)
	if err != nil {
		panic(err)
	}

	r.statement = stmt
}
