package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Details   any       `json:"details,omitempty"`
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthManager runs the registered checks on demand
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

func NewHealthManager() *HealthManager {
	return &HealthManager{checkers: make(map[string]HealthChecker)}
}

// RegisterChecker registers a health checker under name
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// Run executes every check and reports whether all of them passed
func (hm *HealthManager) Run(ctx context.Context) (map[string]HealthStatus, bool) {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	hm.mu.RUnlock()
	sort.Strings(names)

	healthy := true
	status := make(map[string]HealthStatus, len(names))
	for _, name := range names {
		hm.mu.RLock()
		checker := hm.checkers[name]
		hm.mu.RUnlock()

		s := checker.Check(ctx)
		if s.Status != "ok" {
			healthy = false
		}
		status[name] = s
	}
	return status, healthy
}

// LogHealthChecker fails once the write-ahead log stops accepting appends
type LogHealthChecker struct {
	log LogInfo
}

func NewLogHealthChecker(log LogInfo) *LogHealthChecker {
	return &LogHealthChecker{log: log}
}

// Check implements HealthChecker
func (c *LogHealthChecker) Check(ctx context.Context) HealthStatus {
	details := map[string]interface{}{
		"path":          c.log.Path(),
		"last_sequence": c.log.LastSequence(),
	}
	if err := c.log.Err(); err != nil {
		return HealthStatus{
			Status:    "error",
			Message:   err.Error(),
			Timestamp: time.Now(),
			Details:   details,
		}
	}
	return HealthStatus{Status: "ok", Timestamp: time.Now(), Details: details}
}

// StoreHealthChecker reports the number of keys held in memory
type StoreHealthChecker struct {
	store KeyValueStore
}

func NewStoreHealthChecker(store KeyValueStore) *StoreHealthChecker {
	return &StoreHealthChecker{store: store}
}

// Check implements HealthChecker
func (c *StoreHealthChecker) Check(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"keys": c.store.Len()},
	}
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components, healthy := s.health.Run(r.Context())

	code := http.StatusOK
	overall := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	writeJSON(w, code, map[string]interface{}{
		"status":     overall,
		"time":       time.Now().UTC(),
		"components": components,
	})
}
