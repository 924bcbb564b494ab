package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
)

// QueryParams bundles the optional parts of a query. The zero value selects
// every row of a table.
type QueryParams struct {
	// Where is the WHERE clause without the WHERE keyword, with ?
	// placeholders for the arguments. Example: "Tick > ? AND Status = ?".
	Where string

	// Args holds the arguments for the placeholders in Where.
	Args []any

	// Limit is the maximum number of rows to return. Zero means no limit.
	Limit int

	// Offset is the number of rows to skip.
	Offset int

	// OrderBy is the sorting expression without the ORDER BY keywords.
	// Example: "Tick DESC".
	OrderBy string
}

// A Reader reads recorded data back from a database.
type Reader interface {
	// MapTable associates a table with the struct type of its rows. A
	// table must be mapped before it can be queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the names of all the mapped tables.
	ListTables() []string

	// Query returns the rows of a table that match the params, along with
	// the total number of matching rows ignoring Limit and Offset. Each
	// result is a value of the mapped struct type.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	// Close closes the database connection.
	Close() error
}

// sqliteReader reads data back from a SQLite file.
type sqliteReader struct {
	*sql.DB

	typeMap map[string]reflect.Type
}

// NewReader opens a Reader over the SQLite file at filename. The name must
// include the .sqlite3 suffix.
func NewReader(filename string) Reader {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	return NewReaderWithDB(db)
}

// NewReaderWithDB creates a Reader over an already-open database handle.
func NewReaderWithDB(db *sql.DB) Reader {
	return &sqliteReader{
		DB:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

// MapTable records the struct type that Query instantiates for the table's
// rows.
func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	structType := reflect.TypeOf(sampleEntry)
	if structType.Kind() != reflect.Struct {
		panic(fmt.Sprintf("sample entry for table %s is not a struct",
			tableName))
	}

	r.typeMap[tableName] = structType
}

// ListTables returns the names of all the mapped tables.
func (r *sqliteReader) ListTables() []string {
	tableNames := make([]string, 0, len(r.typeMap))
	for name := range r.typeMap {
		tableNames = append(tableNames, name)
	}

	return tableNames
}

// Query reads the matching rows of a table.
func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) (results []any, totalCount int, err error) {
	structType, ok := r.typeMap[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	totalCount, err = r.queryTotalCount(ctx, tableName, params)
	if err != nil {
		return nil, 0, err
	}

	queryStr := "SELECT * FROM " + tableName

	if params.Where != "" {
		queryStr += " WHERE " + params.Where
	}

	if params.OrderBy != "" {
		queryStr += " ORDER BY " + params.OrderBy
	}

	if params.Limit > 0 || params.Offset > 0 {
		limit := params.Limit
		if limit <= 0 {
			limit = -1
		}

		queryStr += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, params.Offset)
	}

	rows, err := r.QueryContext(ctx, queryStr, params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err = scanRowsToSlice(rows, structType)
	if err != nil {
		return nil, 0, err
	}

	return results, totalCount, nil
}

func (r *sqliteReader) queryTotalCount(
	ctx context.Context,
	tableName string,
	params QueryParams,
) (int, error) {
	queryStr := "SELECT COUNT(*) FROM " + tableName
	if params.Where != "" {
		queryStr += " WHERE " + params.Where
	}

	count := 0

	err := r.QueryRowContext(ctx, queryStr, params.Args...).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// scanRowsToSlice converts rows into values of the mapped struct type,
// matching columns to struct fields by name.
func scanRowsToSlice(rows *sql.Rows, structType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any

	for rows.Next() {
		entry := reflect.New(structType).Elem()

		targets := make([]any, len(columns))
		for i, column := range columns {
			field := entry.FieldByName(column)
			if !field.IsValid() {
				var discard any
				targets[i] = &discard

				continue
			}

			targets[i] = field.Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, entry.Interface())
	}

	return results, rows.Err()
}

// Close closes the database connection.
func (r *sqliteReader) Close() error {
	return r.DB.Close()
}
