package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const runInfoTimeFormat = "2006-01-02 15:04:05.000000000"

// runInfo is one property of the hosting process, as stored in the run_info
// table.
type runInfo struct {
	Property string
	Value    string
}

// A RunRecorder logs how the hosting program ran: the command line, the
// directory it ran from, and when it started and ended.
type RunRecorder struct {
	tableName string
	recorder  Recorder
	entries   []runInfo
}

// NewRunRecorder creates a RunRecorder that stores through the given
// Recorder. It creates the run_info table immediately.
func NewRunRecorder(recorder Recorder) *RunRecorder {
	r := &RunRecorder{
		tableName: "run_info",
		recorder:  recorder,
	}

	r.recorder.CreateTable(r.tableName, runInfo{})

	return r
}

// Start captures the start time, the command line, and the working directory
// of the current run.
func (r *RunRecorder) Start() {
	startTime := time.Now().Format(runInfoTimeFormat)
	r.entries = append(r.entries, runInfo{"Start Time", startTime})

	cmd := strings.Join(os.Args, " ")
	r.entries = append(r.entries, runInfo{"Command", cmd})

	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}

	r.entries = append(r.entries, runInfo{"Working Directory", filepath.Dir(ex)})
}

// End writes the captured properties along with the end time and flushes the
// backing recorder.
func (r *RunRecorder) End() {
	for _, entry := range r.entries {
		r.recorder.InsertData(r.tableName, entry)
	}

	endTime := time.Now().Format(runInfoTimeFormat)
	r.recorder.InsertData(r.tableName, runInfo{"End Time", endTime})

	r.entries = nil

	r.recorder.Flush()
}
