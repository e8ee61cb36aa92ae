package health

import (
	"context"
	"fmt"
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/db"
	"github.com/redis/go-redis/v9"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check represents a single health check
type Check struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// HealthReport represents the overall health of the application
type HealthReport struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// timedCheck times fn and fills a Check from its outcome.
func timedCheck(ctx context.Context, name, what string, fn func(ctx context.Context, details map[string]string) error) Check {
	start := time.Now()
	check := Check{Name: name, Timestamp: start, Details: make(map[string]string)}

	err := fn(ctx, check.Details)
	check.Duration = time.Since(start)

	if err != nil {
		check.Status = StatusDown
		check.Message = fmt.Sprintf("%s failed: %v", what, err)
		check.Details["error"] = err.Error()
		return check
	}
	check.Status = StatusUp
	check.Message = what + " successful"
	check.Details["response_time"] = check.Duration.String()
	return check
}

// RedisChecker pings Redis
type RedisChecker struct {
	Client *redis.Client
	Name   string
}

func (c *RedisChecker) Check(ctx context.Context) Check {
	return timedCheck(ctx, c.Name, "Redis connection", func(ctx context.Context, d map[string]string) error {
		pong, err := c.Client.Ping(ctx).Result()
		if err == nil {
			d["ping_response"] = pong
		}
		return err
	})
}

// PostgresChecker pings PostgreSQL
type PostgresChecker struct {
	DB   *db.PostgresDB
	Name string
}

func (c *PostgresChecker) Check(ctx context.Context) Check {
	return timedCheck(ctx, c.Name, "Database connection", func(ctx context.Context, _ map[string]string) error {
		return c.DB.Ping(ctx)
	})
}

// Neo4jChecker runs a trivial read against the route graph
type Neo4jChecker struct {
	DB   db.Neo4jReader
	Name string
}

func (c *Neo4jChecker) Check(ctx context.Context) Check {
	return timedCheck(ctx, c.Name, "Neo4j connection", func(ctx context.Context, _ map[string]string) error {
		res, err := c.DB.ExecuteReadQuery(ctx, "RETURN 1 AS ok", nil)
		if err != nil {
			return err
		}
		defer res.Close()
		res.Next()
		return res.Err()
	})
}

// CatalogChecker reports whether the airport dataset has been loaded
type CatalogChecker struct {
	Catalog *airports.Catalog
	Name    string
}

func (c *CatalogChecker) Check(ctx context.Context) Check {
	return timedCheck(ctx, c.Name, "Airport catalog", func(_ context.Context, d map[string]string) error {
		if !c.Catalog.Loaded() {
			return fmt.Errorf("dataset not loaded")
		}
		stats := c.Catalog.Stats()
		d["airports"] = fmt.Sprintf("%d", len(c.Catalog.Airports()))
		d["active_airports"] = fmt.Sprintf("%d", stats.TotalAirports)
		d["destinations"] = fmt.Sprintf("%d", stats.TotalDestinations)
		return nil
	})
}

type registered struct {
	checker  Checker
	critical bool
}

// HealthChecker orchestrates multiple health checks
type HealthChecker struct {
	checkers  []registered
	version   string
	startTime time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, startTime: time.Now()}
}

// AddChecker adds a check that only affects the full health report
func (h *HealthChecker) AddChecker(checker Checker) {
	h.checkers = append(h.checkers, registered{checker: checker})
}

// AddCriticalChecker adds a check that also gates readiness
func (h *HealthChecker) AddCriticalChecker(checker Checker) {
	h.checkers = append(h.checkers, registered{checker: checker, critical: true})
}

// CheckHealth runs every check
func (h *HealthChecker) CheckHealth(ctx context.Context) HealthReport {
	return h.run(ctx, false)
}

// CheckReadiness runs only the critical checks
func (h *HealthChecker) CheckReadiness(ctx context.Context) HealthReport {
	return h.run(ctx, true)
}

// CheckLiveness reports that the process is serving
func (h *HealthChecker) CheckLiveness(ctx context.Context) HealthReport {
	now := time.Now()
	return HealthReport{
		Status:    StatusUp,
		Version:   h.version,
		Timestamp: now,
		Checks: map[string]Check{
			"application": {Name: "application", Status: StatusUp, Message: "Application is running", Timestamp: now},
		},
		Uptime: time.Since(h.startTime),
	}
}

func (h *HealthChecker) run(ctx context.Context, criticalOnly bool) HealthReport {
	checks := make(map[string]Check)
	overall := StatusUp

	for _, r := range h.checkers {
		if criticalOnly && !r.critical {
			continue
		}
		check := r.checker.Check(ctx)
		checks[check.Name] = check
		if check.Status == StatusDown {
			overall = StatusDown
		}
	}

	return HealthReport{
		Status:    overall,
		Version:   h.version,
		Timestamp: time.Now(),
		Checks:    checks,
		Uptime:    time.Since(h.startTime),
	}
}
