package cadence

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/xid"

	"github.com/schedlab/cadence/monitoring"
	"github.com/schedlab/cadence/sched"
	"github.com/schedlab/cadence/telemetry"
	"github.com/schedlab/cadence/tracing"
)

// Builder can be used to build an engine.
type Builder struct {
	engineName     string
	workers        int
	monitorOn      bool
	monitorPort    int
	browserWindow  bool
	outputFileName string
	clickHouseConn string
}

// MakeBuilder creates a builder with the default configuration. The defaults
// can be overridden with CADENCE_* environment variables, which a .env file
// in the working directory may provide.
func MakeBuilder() Builder {
	_ = godotenv.Load()

	b := Builder{
		engineName: "engine",
		monitorOn:  true,
	}

	return b.applyEnv()
}

func (b Builder) applyEnv() Builder {
	if v := os.Getenv("CADENCE_WORKERS"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Sprintf("invalid CADENCE_WORKERS value %q", v))
		}

		b.workers = workers
	}

	if v := os.Getenv("CADENCE_MONITOR"); v != "" {
		if strings.ToLower(v) == "false" || v == "0" {
			b.monitorOn = false
		}
	}

	if v := os.Getenv("CADENCE_MONITOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Sprintf("invalid CADENCE_MONITOR_PORT value %q", v))
		}

		b.monitorPort = port
	}

	if v := os.Getenv("CADENCE_OUTPUT"); v != "" {
		b.outputFileName = v
	}

	if v := os.Getenv("CADENCE_CLICKHOUSE"); v != "" {
		b.clickHouseConn = v
	}

	return b
}

// WithEngineName sets the name of the engine, which prefixes the task IDs on
// the trace timeline.
func (b Builder) WithEngineName(name string) Builder {
	b.engineName = name
	return b
}

// WithWorkers sets the number of pool workers that spread multi-threaded
// systems. With zero pool workers all systems run on the goroutine that
// calls Progress.
func (b Builder) WithWorkers(workers int) Builder {
	b.workers = workers
	return b
}

// WithoutMonitoring sets the engine to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowserWindow makes the monitor open the dashboard in the default
// browser once the server is up.
func (b Builder) WithBrowserWindow() Builder {
	b.browserWindow = true
	return b
}

// WithOutputFileName sets the custom output file name for the recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithClickHouse sends recorded data to a ClickHouse server instead of a
// local SQLite file. The connection string has the form
// clickhouse://host:port/database?username=u&password=p.
func (b Builder) WithClickHouse(connStr string) Builder {
	b.clickHouseConn = connStr
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.workers < 0 {
		panic("worker count cannot be negative")
	}
}

// Build builds the engine.
func (b Builder) Build() *Engine {
	b.parametersMustBeValid()

	e := &Engine{}
	e.id = xid.New().String()

	e.recorder = b.buildRecorder(e.id)
	e.runRecorder = telemetry.NewRunRecorder(e.recorder)
	e.runRecorder.Start()

	e.registry = sched.NewRegistry()
	e.scheduler = sched.NewScheduler(b.engineName, e.registry, b.workers)
	e.scheduler.AcceptHook(telemetry.NewCollector(e.recorder))

	// Virtual time does not move within a tick, so the timeline tracer
	// stamps tasks with wall-clock time.
	e.visTracer = tracing.NewDBTracer(tracing.NewWallClock(), e.recorder)
	tracing.EmitSchedulerTasks(e.scheduler)
	tracing.CollectTrace(e.scheduler, e.visTracer)

	if b.monitorOn {
		e.monitor = monitoring.NewMonitor()

		if b.monitorPort > 0 {
			e.monitor.WithPortNumber(b.monitorPort)
		}

		if b.browserWindow {
			e.monitor.WithBrowserWindow()
		}

		e.monitor.RegisterScheduler(e.scheduler)
		e.monitor.RegisterTracer(e.visTracer)
		e.monitor.StartServer()
	}

	return e
}

func (b Builder) buildRecorder(id string) telemetry.Recorder {
	if b.clickHouseConn != "" {
		return telemetry.NewWithConfig(telemetry.RecorderConfig{
			Type:    "clickhouse",
			ConnStr: b.clickHouseConn,
		})
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "cadence_run_" + id
	}

	return telemetry.New(outputPath)
}
