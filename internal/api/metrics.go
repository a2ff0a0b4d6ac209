package api

import (
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/database"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	Database      DatabaseMetrics    `json:"database"`
	Statements    []OperationMetrics `json:"statements"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DatabaseMetrics describes the store.
type DatabaseMetrics struct {
	Path          string `json:"path"`
	Driver        string `json:"driver"`
	HasConnection bool   `json:"has_connection"`
}

// OperationMetrics aggregates the events of one operation name.
type OperationMetrics struct {
	Operation    string  `json:"operation"`
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	Rows         int64   `json:"rows"`
	RowsAffected int64   `json:"rows_affected"`
	TotalMS      float64 `json:"total_ms"`
	LastCode     int     `json:"last_code"`
}

// Stats counts statement events per operation. It implements
// database.Observer and is safe for concurrent use.
type Stats struct {
	mu  sync.Mutex
	ops map[string]*OperationMetrics
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{ops: make(map[string]*OperationMetrics)}
}

// ObserveStatement implements database.Observer.
func (st *Stats) ObserveStatement(ev database.StatementEvent) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m, ok := st.ops[ev.Operation]
	if !ok {
		m = &OperationMetrics{Operation: ev.Operation}
		st.ops[ev.Operation] = m
	}
	m.Count++
	if ev.Code.IsError() {
		m.Errors++
	}
	m.Rows += int64(ev.Rows)
	m.RowsAffected += ev.RowsAffected
	m.TotalMS += float64(ev.Duration) / float64(time.Millisecond)
	m.LastCode = int(ev.Code)
}

// Snapshot returns a copy of the counters sorted by operation name.
func (st *Stats) Snapshot() []OperationMetrics {
	if st == nil {
		return []OperationMetrics{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]OperationMetrics, 0, len(st.ops))
	for _, m := range st.ops {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// handleMetrics returns runtime, store and statement metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Database: DatabaseMetrics{
			Path:          s.store.Path(),
			Driver:        s.store.Driver(),
			HasConnection: s.store.HasConnection(),
		},
		Statements: s.stats.Snapshot(),
	})
}
