package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "Studio Engine"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond
)

// SchedulerState is the view of the schedule manager the health report needs.
type SchedulerState interface {
	Started() bool
	Tasks() []TaskInfo
}

// HealthOptions carries the probed dependencies. Any of them may be nil.
type HealthOptions struct {
	ServiceName       string
	Version           string
	Environment       string
	DB                *gorm.DB
	Redis             *redis.Client
	// RedisRequired makes a missing redis degrade the report instead of showing as disabled.
	RedisRequired     bool
	Scheduler         SchedulerState
	// SchedulerExpected is false on instances that do not run the timers.
	SchedulerExpected bool
	Flags             HealthFlags
}

// HealthService aggregates application health information for reporting endpoints.
type HealthService struct {
	opts      HealthOptions
	startTime time.Time
	timeout   time.Duration
}

// HealthReport represents the JSON response for health endpoints.
type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Scheduler     *SchedulerHealth   `json:"scheduler,omitempty"`
	Metrics       HealthMetrics      `json:"metrics"`
	Flags         HealthFlags        `json:"flags"`
	System        HealthSystem       `json:"system"`
}

// DependencyStatus captures the health of a single external dependency.
type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// SchedulerHealth reports the periodic task runner.
type SchedulerHealth struct {
	Started     bool       `json:"started"`
	FailedTasks []string   `json:"failed_tasks,omitempty"`
	Tasks       []TaskInfo `json:"tasks"`
}

// HealthMetrics captures runtime metrics for diagnostics.
type HealthMetrics struct {
	Goroutines int            `json:"goroutines"`
	Memory     MemoryMetrics  `json:"memory"`
	Database   *DatabaseStats `json:"database,omitempty"`
}

// MemoryMetrics captures Go memory statistics.
type MemoryMetrics struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	HeapObjects    uint64 `json:"heap_objects"`
	LastGCUnix     *int64 `json:"last_gc_unix,omitempty"`
}

// DatabaseStats captures statistics from the SQL connection pool.
type DatabaseStats struct {
	OpenConnections    int   `json:"open_connections"`
	InUse              int   `json:"in_use"`
	Idle               int   `json:"idle"`
	WaitCount          int64 `json:"wait_count"`
	MaxOpenConnections int   `json:"max_open_connections"`
}

// HealthFlags exposes feature toggles that influence runtime behaviour.
type HealthFlags struct {
	SkipMigrate           bool `json:"skip_migrate"`
	UseRedisNotifications bool `json:"use_redis_notifications"`
	ReportArchiveEnabled  bool `json:"report_archive_enabled"`
	SchedulerEnabled      bool `json:"scheduler_enabled"`
}

// HealthSystem exposes static information about the running system.
type HealthSystem struct {
	GoVersion string `json:"go_version"`
	GoOS      string `json:"go_os"`
	GoArch    string `json:"go_arch"`
}

func NewHealthService(opts HealthOptions) *HealthService {
	if strings.TrimSpace(opts.ServiceName) == "" {
		opts.ServiceName = defaultServiceName
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = defaultVersion
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "unknown"
	}
	return &HealthService{
		opts:      opts,
		startTime: time.Now(),
		timeout:   defaultTimeout,
	}
}

// SetStartTime overrides the start time used for uptime calculations.
func (s *HealthService) SetStartTime(t time.Time) {
	if !t.IsZero() {
		s.startTime = t
	}
}

// GetHealthReport collects the current health information.
func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := HealthReport{
		Status:      overallStatusOK,
		Service:     s.opts.ServiceName,
		Version:     s.opts.Version,
		Environment: s.opts.Environment,
		Time:        time.Now().UTC(),
		Flags:       s.opts.Flags,
	}

	uptime := time.Since(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report.UptimeSeconds = uptime.Seconds()
	report.UptimeHuman = humanizeDuration(uptime)

	dbDep, dbMetrics, dbStatus := s.checkDatabase(ctx)
	report.Dependencies = append(report.Dependencies, dbDep)
	report.Status = combineStatus(report.Status, dbStatus)

	redisDep, redisStatus := s.checkRedis(ctx)
	report.Dependencies = append(report.Dependencies, redisDep)
	report.Status = combineStatus(report.Status, redisStatus)

	if s.opts.Scheduler != nil {
		sched, schedStatus := s.checkScheduler()
		report.Scheduler = sched
		report.Status = combineStatus(report.Status, schedStatus)
	}

	report.Metrics = collectSystemMetrics(dbMetrics)
	report.System = HealthSystem{
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}
	return report
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == overallStatusCritical {
		return 503
	}
	return 200
}

func (s *HealthService) checkDatabase(ctx context.Context) (DependencyStatus, *DatabaseStats, string) {
	dep := DependencyStatus{Name: "mysql"}
	if s.opts.DB == nil {
		dep.Status = dependencyStatusDown
		dep.Error = "database connection not initialised"
		return dep, nil, overallStatusCritical
	}

	sqlDB, err := s.opts.DB.DB()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = fmt.Sprintf("sql DB handle error: %v", err)
		return dep, nil, overallStatusCritical
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, nil, overallStatusCritical
	}

	dep.Status = dependencyStatusUp
	stats := sqlDB.Stats()
	return dep, &DatabaseStats{
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		MaxOpenConnections: stats.MaxOpenConnections,
	}, overallStatusOK
}

func (s *HealthService) checkRedis(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "redis"}
	client := s.opts.Redis
	if client == nil {
		if s.opts.RedisRequired {
			dep.Status = dependencyStatusDown
			dep.Error = "redis client not initialised"
			return dep, overallStatusDegraded
		}
		dep.Status = dependencyStatusDisabled
		return dep, overallStatusOK
	}

	start := time.Now()
	err := client.Ping(ctx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		// report locks fall back to a process-local lock, which is unsafe with several instances
		return dep, overallStatusDegraded
	}

	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{"address": client.Options().Addr}
	return dep, overallStatusOK
}

func (s *HealthService) checkScheduler() (*SchedulerHealth, string) {
	h := &SchedulerHealth{
		Started: s.opts.Scheduler.Started(),
		Tasks:   s.opts.Scheduler.Tasks(),
	}
	status := overallStatusOK
	for _, t := range h.Tasks {
		if t.LastError != "" {
			h.FailedTasks = append(h.FailedTasks, t.Name)
			status = overallStatusDegraded
		}
	}
	if s.opts.SchedulerExpected && !h.Started {
		status = overallStatusDegraded
	}
	return h, status
}

func collectSystemMetrics(dbMetrics *DatabaseStats) HealthMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m := HealthMetrics{
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryMetrics{
			AllocBytes:     mem.Alloc,
			SysBytes:       mem.Sys,
			HeapAllocBytes: mem.HeapAlloc,
			HeapObjects:    mem.HeapObjects,
		},
		Database: dbMetrics,
	}
	if mem.LastGC != 0 {
		unix := time.Unix(0, int64(mem.LastGC)).Unix()
		m.Memory.LastGCUnix = &unix
	}
	return m
}

func combineStatus(current, candidate string) string {
	order := map[string]int{
		overallStatusOK:       0,
		overallStatusDegraded: 1,
		overallStatusCritical: 2,
	}
	if _, ok := order[current]; !ok {
		current = overallStatusOK
	}
	if v, ok := order[candidate]; ok && v > order[current] {
		return candidate
	}
	return current
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	d %= time.Minute
	seconds := d / time.Second

	parts := []string{}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
