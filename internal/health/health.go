package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	// StatusDisabled marks an optional component that is not configured.
	StatusDisabled Status = "disabled"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// DBPinger is satisfied by *sql.DB and *db.DB.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// Checker performs health checks on various components
type Checker struct {
	db           DBPinger
	redisCheck   Probe
	storageCheck Probe
	version      string
	checkTimeout time.Duration
	started      time.Time
}

// CheckerConfig holds configuration for the health checker. A nil Redis or
// Storage probe reports that component as disabled; the database is
// always required.
type CheckerConfig struct {
	DB           DBPinger
	RedisCheck   Probe
	StorageCheck Probe
	Version      string
	Timeout      time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		db:           cfg.DB,
		redisCheck:   cfg.RedisCheck,
		storageCheck: cfg.StorageCheck,
		version:      cfg.Version,
		checkTimeout: timeout,
		started:      time.Now(),
	}
}

// CheckDB checks database connectivity
func (c *Checker) CheckDB(ctx context.Context) ComponentHealth {
	if c.db == nil {
		return ComponentHealth{Status: StatusUnhealthy, Message: "database not configured"}
	}
	return c.probe(ctx, "database ping failed", c.db.PingContext)
}

// CheckRedis checks Redis connectivity
func (c *Checker) CheckRedis(ctx context.Context) ComponentHealth {
	if c.redisCheck == nil {
		return ComponentHealth{Status: StatusDisabled, Message: "redis not configured"}
	}
	// The cache is optional; losing it slows reads but loses no data.
	h := c.probe(ctx, "redis ping failed", c.redisCheck)
	if h.Status == StatusUnhealthy {
		h.Status = StatusDegraded
	}
	return h
}

// CheckStorage checks S3/MinIO connectivity
func (c *Checker) CheckStorage(ctx context.Context) ComponentHealth {
	if c.storageCheck == nil {
		return ComponentHealth{Status: StatusDisabled, Message: "storage not configured"}
	}
	h := c.probe(ctx, "storage check failed", c.storageCheck)
	if h.Status == StatusUnhealthy {
		h.Status = StatusDegraded
	}
	return h
}

func (c *Checker) probe(ctx context.Context, failure string, p Probe) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := p(ctx); err != nil {
		return ComponentHealth{
			Status:   StatusUnhealthy,
			Message:  failure,
			Duration: time.Since(start).String(),
		}
	}
	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
		Uptime:    time.Since(c.started).Round(time.Second).String(),
	}
}

// DeepCheck performs a comprehensive health check (readiness)
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := c.Check(ctx)
	response.Components = make(map[string]ComponentHealth)

	var wg sync.WaitGroup
	var mu sync.Mutex

	checks := map[string]func(context.Context) ComponentHealth{
		"database": c.CheckDB,
		"redis":    c.CheckRedis,
		"storage":  c.CheckStorage,
	}

	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := check(ctx)
			mu.Lock()
			response.Components[name] = result
			mu.Unlock()
		}()
	}

	wg.Wait()

	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// LivenessHandler handles liveness probe requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, h.checker.Check(r.Context()))
}

// ReadinessHandler reports 503 only when a required component is down.
// Degraded still accepts traffic.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, h.checker.DeepCheck(r.Context()))
}

// HealthHandler serves /health; ?deep=true runs the readiness checks.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}

func writeHealth(w http.ResponseWriter, response *HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}
