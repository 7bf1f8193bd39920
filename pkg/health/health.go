package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"provider-messaging/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Component is the last known state of a checked dependency.
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one dependency.
type Check func(ctx context.Context) (Status, string, error)

type registration struct {
	check    Check
	critical bool
}

// Checker runs registered checks periodically and serves the results.
type Checker struct {
	mu          sync.RWMutex
	checks      map[string]registration
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	log         *logger.Logger
}

func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	return &Checker{
		checks:      make(map[string]registration),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		log:         log,
	}
}

// RegisterCheck adds a check. A critical component that is down makes the
// whole service report 503.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "not checked yet",
	}
}

// RegisterDatabaseCheck registers the critical database ping.
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "database connection failed", err
		}
		return StatusUp, "database connection is established", nil
	})
}

// RegisterCacheCheck registers the profile cache. The service keeps working
// without it, only slower.
func (c *Checker) RegisterCacheCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("cache", false, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, "cache unreachable, reading profiles from the database", err
		}
		return StatusUp, "cache is reachable", nil
	})
}

// RunChecks executes all registered checks once.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mu.RUnlock()

	for name, reg := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := reg.check(checkCtx)
		cancel()

		c.mu.Lock()
		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now()
		component.Error = ""
		if err != nil {
			component.Error = err.Error()
		}
		c.mu.Unlock()

		if err != nil {
			c.log.Warn("health check failed", "component", name, "status", string(status), "error", err.Error())
		}
	}
}

// Start runs the checks immediately and then every check period until ctx
// is done.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of every component's state.
func (c *Checker) GetStatus() map[string]Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]Component, len(c.components))
	for k, v := range c.components {
		result[k] = *v
	}
	return result
}

// IsSystemHealthy returns true if no critical component is down.
func (c *Checker) IsSystemHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// Handler serves the component states as JSON.
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		code, status := http.StatusOK, "ok"
		if !c.IsSystemHealthy() {
			code, status = http.StatusServiceUnavailable, "unavailable"
		}
		ctx.JSON(code, gin.H{
			"status":     status,
			"timestamp":  time.Now().UTC(),
			"components": c.GetStatus(),
		})
	}
}
