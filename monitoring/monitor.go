// Package monitoring turns a running engine into a web server, so that the
// engine can be observed and controlled from a browser while it runs.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/schedlab/cadence/monitoring/web"
	"github.com/schedlab/cadence/sched"
	"github.com/schedlab/cadence/tracing"
)

// Monitor serves a dashboard and a control API for one scheduler.
type Monitor struct {
	scheduler  *sched.Scheduler
	tracer     *tracing.DBTracer
	portNumber int
	openWindow bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowserWindow makes StartServer open the dashboard in the default
// browser.
func (m *Monitor) WithBrowserWindow() *Monitor {
	m.openWindow = true

	return m
}

// RegisterScheduler registers the scheduler to be monitored.
func (m *Monitor) RegisterScheduler(s *sched.Scheduler) {
	m.scheduler = s
}

// RegisterTracer registers the database tracer whose sessions the dashboard
// can open and close.
func (m *Monitor) RegisterTracer(t *tracing.DBTracer) {
	m.tracer = t
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/tick", m.tick)
	r.HandleFunc("/api/plan", m.showPlan)
	r.HandleFunc("/api/list_systems", m.listSystems)
	r.HandleFunc("/api/system/{name}", m.listSystemDetails)
	r.HandleFunc("/api/state/{json}", m.listStateField)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/trace/start", m.startTracing)
	r.HandleFunc("/api/trace/stop", m.stopTracing)
	r.PathPrefix("/").Handler(fServer)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring engine with %s\n", url)

	if m.openWindow {
		err := browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open browser: %s\n", err)
		}
	}

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.scheduler.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.scheduler.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.scheduler.CurrentTime()
	tick := m.scheduler.CurrentTick()
	fmt.Fprintf(w, "{\"now\":%.10f,\"tick\":%d}", now, tick)
}

func (m *Monitor) run(w http.ResponseWriter, r *http.Request) {
	ticks, err := strconv.ParseUint(r.URL.Query().Get("ticks"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid ticks parameter")
		return
	}

	dt, ok := parseDt(w, r)
	if !ok {
		return
	}

	go m.scheduler.Run(context.Background(), ticks, dt)

	w.WriteHeader(http.StatusAccepted)
}

type tickRsp struct {
	Tick     uint64            `json:"tick"`
	Time     float64           `json:"time"`
	WallTime float64           `json:"wall_time"`
	Ran      int               `json:"ran"`
	Error    string            `json:"error,omitempty"`
	Statuses map[string]string `json:"statuses"`
}

func (m *Monitor) tick(w http.ResponseWriter, r *http.Request) {
	dt, ok := parseDt(w, r)
	if !ok {
		return
	}

	result := m.scheduler.Progress(dt)

	rsp := tickRsp{
		Tick:     result.Tick,
		Time:     float64(result.Time),
		WallTime: result.WallDuration.Seconds(),
		Ran:      result.Ran,
		Statuses: make(map[string]string, len(result.Statuses)),
	}

	if result.Err != nil {
		rsp.Error = result.Err.Error()
	}

	registry := m.scheduler.Registry()
	for id, status := range result.Statuses {
		rsp.Statuses[registry.Name(id)] = status.String()
	}

	writeJSON(w, rsp)
}

func parseDt(w http.ResponseWriter, r *http.Request) (sched.VTimeInSec, bool) {
	dt, err := strconv.ParseFloat(r.URL.Query().Get("dt"), 64)
	if err != nil || dt < 0 {
		httpError(w, http.StatusBadRequest, "invalid dt parameter")
		return 0, false
	}

	return sched.VTimeInSec(dt), true
}

type planStageRsp struct {
	Exclusive bool     `json:"exclusive"`
	Systems   []string `json:"systems"`
}

type planRsp struct {
	ID       string         `json:"id"`
	Seq      uint64         `json:"seq"`
	Rendered string         `json:"rendered"`
	Stages   []planStageRsp `json:"stages"`
	Excluded []string       `json:"excluded,omitempty"`
	Warning  string         `json:"warning,omitempty"`
}

func (m *Monitor) showPlan(w http.ResponseWriter, _ *http.Request) {
	plan, err := m.scheduler.Plan()
	if plan == nil {
		httpError(w, http.StatusConflict, err.Error())
		return
	}

	rsp := planRsp{
		ID:       plan.ID,
		Seq:      plan.Seq,
		Rendered: plan.String(),
	}

	if err != nil {
		rsp.Warning = err.Error()
	}

	for _, stage := range plan.Stages {
		stageRsp := planStageRsp{Exclusive: stage.Exclusive}
		for _, s := range stage.Systems {
			stageRsp.Systems = append(stageRsp.Systems, s.Name)
		}

		rsp.Stages = append(rsp.Stages, stageRsp)
	}

	registry := m.scheduler.Registry()
	for _, id := range plan.Excluded {
		rsp.Excluded = append(rsp.Excluded, registry.Name(id))
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listSystems(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")

	first := true
	m.scheduler.Registry().ForEach(func(_ sched.SystemID, desc sched.Desc) {
		if !first {
			fmt.Fprint(w, ",")
		}
		first = false

		fmt.Fprintf(w, "%q", desc.Name)
	})

	fmt.Fprint(w, "]")
}

type systemRsp struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Phase         string  `json:"phase"`
	Interval      float64 `json:"interval"`
	Rate          uint    `json:"rate"`
	MultiThreaded bool    `json:"multi_threaded"`
	Immediate     bool    `json:"immediate"`
	Enabled       bool    `json:"enabled"`
}

func (m *Monitor) listSystemDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	id, desc, found := m.findSystemOr404(w, name)
	if !found {
		return
	}

	registry := m.scheduler.Registry()
	rsp := systemRsp{
		ID:            id.String(),
		Name:          desc.Name,
		Phase:         registry.PhaseName(desc.Phase),
		Interval:      float64(desc.Interval),
		Rate:          desc.Rate,
		MultiThreaded: desc.MultiThreaded,
		Immediate:     desc.Immediate,
		Enabled:       registry.Enabled(id),
	}

	writeJSON(w, rsp)
}

type stateReq struct {
	SystemName string `json:"system,omitempty"`
	FieldName  string `json:"field,omitempty"`
}

// listStateField serializes the state object a system carries in its
// descriptor's Ctx, optionally descending into one field path.
func (m *Monitor) listStateField(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := stateReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, desc, found := m.findSystemOr404(w, req.SystemName)
	if !found {
		return
	}

	if desc.Ctx == nil {
		httpError(w, http.StatusNotFound, "system has no state object")
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(desc.Ctx)
	serializer.SetMaxDepth(1)

	if req.FieldName != "" {
		fields := strings.Split(req.FieldName, ".")

		err = serializer.SetEntryPoint(fields)
		dieOnErr(err)
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findSystemOr404(
	w http.ResponseWriter,
	name string,
) (sched.SystemID, sched.Desc, bool) {
	var (
		foundID   sched.SystemID
		foundDesc sched.Desc
		found     bool
	)

	m.scheduler.Registry().ForEach(func(id sched.SystemID, desc sched.Desc) {
		if desc.Name == name {
			foundID = id
			foundDesc = desc
			found = true
		}
	})

	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("System not found"))
		dieOnErr(err)
	}

	return foundID, foundDesc, found
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memorySize, err := proc.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

// startTracing opens a recording session on the registered tracer. The
// scheduler pauses while the session flips so that no hook write races the
// new session table.
func (m *Monitor) startTracing(w http.ResponseWriter, _ *http.Request) {
	if m.tracer == nil {
		httpError(w, http.StatusNotFound, "no database tracer registered")
		return
	}

	m.scheduler.Pause()
	defer m.scheduler.Continue()

	m.tracer.StartTracing()

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) stopTracing(w http.ResponseWriter, _ *http.Request) {
	if m.tracer == nil {
		httpError(w, http.StatusNotFound, "no database tracer registered")
		return
	}

	m.scheduler.Pause()
	defer m.scheduler.Continue()

	m.tracer.StopTracing()

	_, err := w.Write(nil)
	dieOnErr(err)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)

	_, err := w.Write([]byte(msg))
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
