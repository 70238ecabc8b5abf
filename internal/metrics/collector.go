// Package metrics exposes Prometheus counters, gauges, and histograms for
// the kernel's command dispatch loop and the container cache.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheClass identifies which layer of the container cache a metric
// belongs to.
type CacheClass string

const (
	CacheClassDatabase  CacheClass = "database"
	CacheClassTable     CacheClass = "table"
	CacheClassDirectory CacheClass = "directory"
	CacheClassPage      CacheClass = "page"
)

// Collector aggregates kernel command metrics and serves them over HTTP.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	commandCounter  *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	rowScanDuration *prometheus.HistogramVec
	cacheHitCounter *prometheus.CounterVec
	cacheSizeGauge  *prometheus.GaugeVec
	lockWaitCounter *prometheus.CounterVec
	errorCounter    *prometheus.CounterVec

	commands  map[string]*CommandMetrics
	lastReset time.Time

	server *http.Server
}

// Config represents metrics configuration.
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	Port           int               `yaml:"port"`
	Path           string            `yaml:"path"`
	Labels         map[string]string `yaml:"labels"`
	Namespace      string            `yaml:"namespace"`
	Subsystem      string            `yaml:"subsystem"`
	UpdateInterval time.Duration     `yaml:"update_interval"`
}

// CommandMetrics tracks aggregate counts for one kernel command type.
type CommandMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	Errors        int64         `json:"errors"`
	LastCommand   time.Time     `json:"last_command"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:        true,
			Port:           9090,
			Path:           "/metrics",
			Namespace:      "cdbms",
			Subsystem:      "",
			UpdateInterval: 30 * time.Second,
			Labels:         make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()

	collector := &Collector{
		config:    config,
		registry:  registry,
		commands:  make(map[string]*CommandMetrics),
		lastReset: time.Now(),
	}

	if err := collector.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Start starts the metrics collection server.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/commands", c.debugCommandsHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	go c.updateLoop(ctx)

	return nil
}

// Stop stops the metrics collection server.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordCommand records one kernel command dispatch (create/append/get/
// update/delete/migrate/flush/rollback/version).
func (c *Collector) RecordCommand(command string, duration time.Duration, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if metrics, exists := c.commands[command]; exists {
		metrics.Count++
		metrics.TotalDuration += duration
		if !success {
			metrics.Errors++
		}
		metrics.LastCommand = time.Now()
		metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	} else {
		errs := int64(0)
		if !success {
			errs = 1
		}
		c.commands[command] = &CommandMetrics{
			Count:         1,
			TotalDuration: duration,
			Errors:        errs,
			LastCommand:   time.Now(),
			AvgDuration:   duration,
		}
	}

	status := "success"
	if !success {
		status = "error"
	}
	c.commandCounter.With(prometheus.Labels{
		"command": command,
		"status":  status,
	}).Inc()
	c.commandDuration.With(prometheus.Labels{
		"command": command,
	}).Observe(duration.Seconds())

	if !success {
		c.errorCounter.With(prometheus.Labels{
			"command": command,
			"type":    "failure",
		}).Inc()
	}
}

// RecordRowScan records the duration of one predicate-evaluation pass over
// a table's live rows.
func (c *Collector) RecordRowScan(table string, duration time.Duration, rowsScanned int) {
	if !c.config.Enabled {
		return
	}

	c.rowScanDuration.With(prometheus.Labels{
		"table": table,
	}).Observe(duration.Seconds())
}

// RecordCacheHit records a container cache hit for the given class.
func (c *Collector) RecordCacheHit(class CacheClass) {
	if !c.config.Enabled {
		return
	}
	c.cacheHitCounter.With(prometheus.Labels{
		"type":  "hit",
		"class": string(class),
	}).Inc()
}

// RecordCacheMiss records a container cache miss for the given class.
func (c *Collector) RecordCacheMiss(class CacheClass) {
	if !c.config.Enabled {
		return
	}
	c.cacheHitCounter.With(prometheus.Labels{
		"type":  "miss",
		"class": string(class),
	}).Inc()
}

// RecordLockWait records a non-blocking lock acquisition that failed
// because the container was already held.
func (c *Collector) RecordLockWait(class CacheClass, mode string) {
	if !c.config.Enabled {
		return
	}
	c.lockWaitCounter.With(prometheus.Labels{
		"class": string(class),
		"mode":  mode,
	}).Inc()
}

// RecordError records an error returned while running command.
func (c *Collector) RecordError(command string, err error) {
	if !c.config.Enabled {
		return
	}
	c.errorCounter.With(prometheus.Labels{
		"command": command,
		"type":    c.classifyError(err),
	}).Inc()
}

// UpdateCacheSize updates the current entry count for a cache class.
func (c *Collector) UpdateCacheSize(class CacheClass, entries int) {
	if !c.config.Enabled {
		return
	}
	c.cacheSizeGauge.With(prometheus.Labels{
		"class": string(class),
	}).Set(float64(entries))
}

// GetMetrics returns a snapshot of current command metrics.
func (c *Collector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	commands := make(map[string]*CommandMetrics)
	for k, v := range c.commands {
		cp := *v
		commands[k] = &cp
	}

	return map[string]interface{}{
		"commands":   commands,
		"last_reset": c.lastReset,
		"uptime":     time.Since(c.lastReset),
	}
}

// ResetMetrics clears the in-memory command tally (Prometheus counters are
// cumulative and are not reset).
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = make(map[string]*CommandMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() error {
	c.commandCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "commands_total",
			Help:      "Total number of kernel commands processed",
		},
		[]string{"command", "status"},
	)

	c.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "command_duration_seconds",
			Help:      "Duration of kernel command dispatch in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"command"},
	)

	c.rowScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "row_scan_duration_seconds",
			Help:      "Duration of a full predicate-evaluation pass over a table",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"table"},
	)

	c.cacheHitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "cache_requests_total",
			Help:      "Total number of container cache lookups",
		},
		[]string{"type", "class"},
	)

	c.cacheSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "cache_entries",
			Help:      "Current number of entries held in each cache class",
		},
		[]string{"class"},
	)

	c.lockWaitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "lock_contended_total",
			Help:      "Total number of non-blocking lock acquisitions that found the container already held",
		},
		[]string{"class", "mode"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by classified type",
		},
		[]string{"command", "type"},
	)

	return nil
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.commandCounter,
		c.commandDuration,
		c.rowScanDuration,
		c.cacheHitCounter,
		c.cacheSizeGauge,
		c.lockWaitCounter,
		c.errorCounter,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func (c *Collector) classifyError(err error) string {
	errStr := err.Error()
	switch {
	case contains(errStr, "not found"):
		return "not_found"
	case contains(errStr, "magic"):
		return "invalid_magic"
	case contains(errStr, "lock"):
		return "lock_unavailable"
	case contains(errStr, "full"):
		return "full_capacity"
	case contains(errStr, "schema"):
		return "schema_violation"
	case contains(errStr, "allocat"):
		return "allocation_failure"
	case contains(errStr, "command") || contains(errStr, "keyword") || contains(errStr, "token"):
		return "malformed_command"
	default:
		return "internal"
	}
}

func (c *Collector) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"cdbms-metrics"}`))
}

func (c *Collector) debugCommandsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("cdbms kernel command summary\n")
	writef("=============================\n\n")
	writef("Uptime: %v\n", time.Since(c.lastReset))
	writef("Last Reset: %v\n\n", c.lastReset)

	if len(c.commands) == 0 {
		writef("No commands recorded.\n")
		return
	}

	writef("%-16s %10s %10s %14s %10s\n", "Command", "Count", "Errors", "Avg Duration", "Last")
	for name, cm := range c.commands {
		writef("%-16s %10d %10d %14v %10s\n",
			name, cm.Count, cm.Errors, cm.AvgDuration, cm.LastCommand.Format("15:04:05"))
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
