package telemetry

// This file verifies that both recorder backends implement the Recorder
// interface. If this file compiles, the interfaces are correctly
// implemented.

var (
	_ Recorder = (*sqliteRecorder)(nil)
	_ Recorder = (*clickhouseRecorder)(nil)
	_ Reader   = (*sqliteReader)(nil)
)
