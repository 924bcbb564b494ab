package tracing

import (
	"database/sql"
	"fmt"
	"strings"

	// Trace files are SQLite databases.
	_ "github.com/mattn/go-sqlite3"

	"github.com/schedlab/cadence/sched"
)

// A TaskQuery selects tasks from a recorded trace session. Empty fields do
// not constrain the result.
type TaskQuery struct {
	// Use ID to select a single task.
	ID string

	// Use ParentID to select the children of a task.
	ParentID string

	// Use Kind to select all the tasks of one kind.
	Kind string

	// Use Where to select the tasks recorded at one location.
	Where string

	// EnableTimeRange turns on StartTime and EndTime.
	EnableTimeRange bool

	// StartTime and EndTime select the tasks whose span overlaps the
	// range.
	StartTime float64
	EndTime   float64
}

// A Session is one recorded tracing window.
type Session struct {
	Table string
	Start sched.VTimeInSec
	End   sched.VTimeInSec
}

// A TraceReader reads the tasks a DBTracer recorded into a SQLite file.
type TraceReader struct {
	*sql.DB
}

// NewTraceReader opens the trace file at filename. The name must include
// the .sqlite3 suffix.
func NewTraceReader(filename string) *TraceReader {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	return &TraceReader{DB: db}
}

// ListSessions returns the recorded sessions in start order.
func (r *TraceReader) ListSessions() []Session {
	rows, err := r.Query(
		"SELECT TableName, SessionStart, SessionEnd FROM trace_sessions " +
			"ORDER BY SessionStart")
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	var sessions []Session

	for rows.Next() {
		s := Session{}

		err := rows.Scan(&s.Table, &s.Start, &s.End)
		if err != nil {
			panic(err)
		}

		sessions = append(sessions, s)
	}

	if rows.Err() != nil {
		panic(rows.Err())
	}

	return sessions
}

// ListLocations returns the distinct task locations of a session.
func (r *TraceReader) ListLocations(session string) []string {
	rows, err := r.Query(fmt.Sprintf(
		"SELECT DISTINCT Location FROM %s ORDER BY Location", session))
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	var locations []string

	for rows.Next() {
		location := ""

		err := rows.Scan(&location)
		if err != nil {
			panic(err)
		}

		locations = append(locations, location)
	}

	if rows.Err() != nil {
		panic(rows.Err())
	}

	return locations
}

// ListTasks returns the tasks of a session that match the query, in start
// order.
func (r *TraceReader) ListTasks(session string, query TaskQuery) []Task {
	queryStr, args := taskQuerySQL(session, query)

	rows, err := r.Query(queryStr, args...)
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	var tasks []Task

	for rows.Next() {
		t := Task{}

		err := rows.Scan(
			&t.ID, &t.ParentID, &t.Kind, &t.What, &t.Where,
			&t.StartTime, &t.EndTime,
		)
		if err != nil {
			panic(err)
		}

		tasks = append(tasks, t)
	}

	if rows.Err() != nil {
		panic(rows.Err())
	}

	return tasks
}

func taskQuerySQL(session string, q TaskQuery) (string, []any) {
	queryStr := fmt.Sprintf(
		"SELECT ID, ParentID, Kind, What, Location, StartTime, EndTime FROM %s",
		session)

	var conds []string
	var args []any

	if q.ID != "" {
		conds = append(conds, "ID = ?")
		args = append(args, q.ID)
	}

	if q.ParentID != "" {
		conds = append(conds, "ParentID = ?")
		args = append(args, q.ParentID)
	}

	if q.Kind != "" {
		conds = append(conds, "Kind = ?")
		args = append(args, q.Kind)
	}

	if q.Where != "" {
		conds = append(conds, "Location = ?")
		args = append(args, q.Where)
	}

	if q.EnableTimeRange {
		conds = append(conds, "StartTime <= ? AND EndTime >= ?")
		args = append(args, q.EndTime, q.StartTime)
	}

	if len(conds) > 0 {
		queryStr += " WHERE " + strings.Join(conds, " AND ")
	}

	queryStr += " ORDER BY StartTime, ID"

	return queryStr, args
}
