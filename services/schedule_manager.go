package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"studio_engine/clock"
	"studio_engine/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	ErrSchedulerAlreadyStarted = errors.New("scheduler: already started in this process")
	ErrUnknownTask             = errors.New("scheduler: unknown task")
	ErrTaskRunning             = errors.New("scheduler: task is already running")
	ErrTaskRegistration        = errors.New("scheduler: cannot register task")
)

// TaskFunc is one unit of scheduled work.
type TaskFunc func(ctx context.Context) error

// InitGuard lets exactly one ScheduleManager run per process. Share one guard
// between every manager built in the same process.
type InitGuard struct {
	mu      sync.Mutex
	started bool
}

func NewInitGuard() *InitGuard { return &InitGuard{} }

// Acquire returns false if the guard is already held.
func (g *InitGuard) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return false
	}
	g.started = true
	return true
}

func (g *InitGuard) Release() {
	g.mu.Lock()
	g.started = false
	g.mu.Unlock()
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	Next      time.Time `json:"next,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Running   bool      `json:"running"`
}

type scheduledTask struct {
	name    string
	spec    string
	fn      TaskFunc
	entryID cron.EntryID
	running sync.Mutex

	lastRun   time.Time
	lastError string
	runs      int
	busy      bool
}

// ScheduleManager owns the engine's named periodic tasks.
type ScheduleManager struct {
	cron    *cron.Cron
	guard   *InitGuard
	clock   clock.Clock
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduleManager(clk clock.Clock, guard *InitGuard, m *metrics.Metrics, log logrus.FieldLogger) *ScheduleManager {
	if guard == nil {
		guard = NewInitGuard()
	}
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	cl := cronLogger{log: log.WithField("component", "cron")}
	c := cron.New(
		cron.WithLocation(clk.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &ScheduleManager{
		cron:    c,
		guard:   guard,
		clock:   clk,
		metrics: m,
		log:     log,
		tasks:   make(map[string]*scheduledTask),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a named task on a cron spec (standard 5-field or @every / @daily descriptors).
func (sm *ScheduleManager) Register(name, spec string, fn TaskFunc) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, dup := sm.tasks[name]; dup {
		return fmt.Errorf("%w: %s registered twice", ErrTaskRegistration, name)
	}
	t := &scheduledTask{name: name, spec: spec, fn: fn}
	id, err := sm.cron.AddFunc(spec, func() {
		if err := sm.run(sm.ctx, t); err != nil && !errors.Is(err, ErrTaskRunning) {
			sm.log.WithError(err).WithField("task", name).Error("scheduled task failed")
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTaskRegistration, name, err)
	}
	t.entryID = id
	sm.tasks[name] = t
	sm.log.WithFields(logrus.Fields{"task": name, "schedule": spec}).Info("scheduled task registered")
	return nil
}

// Start begins ticking. A second Start in the same process fails.
func (sm *ScheduleManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.started || !sm.guard.Acquire() {
		return ErrSchedulerAlreadyStarted
	}
	sm.started = true
	sm.cron.Start()
	sm.log.WithFields(logrus.Fields{"tasks": len(sm.tasks), "timezone": sm.clock.Location().String()}).Info("schedule manager started")
	return nil
}

// Stop halts the timers and waits for running tasks to finish.
func (sm *ScheduleManager) Stop() {
	sm.mu.Lock()
	if !sm.started {
		sm.mu.Unlock()
		return
	}
	sm.started = false
	sm.mu.Unlock()

	<-sm.cron.Stop().Done()
	sm.cancel()
	sm.guard.Release()
	sm.log.Info("schedule manager stopped")
}

// RunNow runs a task immediately through the same path the timer uses.
func (sm *ScheduleManager) RunNow(ctx context.Context, name string) error {
	sm.mu.Lock()
	t, ok := sm.tasks[name]
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return sm.run(ctx, t)
}

func (sm *ScheduleManager) run(ctx context.Context, t *scheduledTask) error {
	if !t.running.TryLock() {
		sm.log.WithField("task", t.name).Debug("task still running, skipped")
		return ErrTaskRunning
	}
	defer t.running.Unlock()

	sm.setBusy(t, true)
	started := sm.clock.Now()
	err := t.fn(ctx)
	elapsed := sm.clock.Now().Sub(started)

	sm.metrics.TaskRuns.WithLabelValues(t.name).Inc()
	sm.metrics.TaskDuration.WithLabelValues(t.name).Observe(elapsed.Seconds())

	sm.mu.Lock()
	t.busy = false
	t.runs++
	t.lastRun = started
	t.lastError = ""
	if err != nil {
		t.lastError = err.Error()
	}
	sm.mu.Unlock()

	sm.log.WithFields(logrus.Fields{"task": t.name, "duration": elapsed.String()}).Debug("task finished")
	return err
}

func (sm *ScheduleManager) setBusy(t *scheduledTask, busy bool) {
	sm.mu.Lock()
	t.busy = busy
	sm.mu.Unlock()
}

// Tasks lists the registered tasks by name.
func (sm *ScheduleManager) Tasks() []TaskInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]TaskInfo, 0, len(sm.tasks))
	for _, t := range sm.tasks {
		info := TaskInfo{
			Name:      t.name,
			Spec:      t.spec,
			LastRun:   t.lastRun,
			LastError: t.lastError,
			Runs:      t.runs,
			Running:   t.busy,
		}
		if sm.started {
			info.Next = sm.cron.Entry(t.entryID).Next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Started reports whether the timers are running.
func (sm *ScheduleManager) Started() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.started
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
