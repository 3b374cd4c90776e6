package health

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Error   string
}

// Probe is one named health check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Checker periodically runs probes against system components: the RPC
// endpoint, the ingest server and the price providers.
type Checker struct {
	mu       sync.RWMutex
	statuses []Status
	probes   []Probe
	interval time.Duration
}

// NewChecker creates a health checker.
func NewChecker(interval time.Duration, probes ...Probe) *Checker {
	return &Checker{
		probes:   probes,
		interval: interval,
	}
}

// HTTPProbe returns a probe that GETs a URL and expects any response.
func HTTPProbe(name, url string) Probe {
	client := &http.Client{Timeout: 5 * time.Second}
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		},
	}
}

// Start begins periodic health checks
func (c *Checker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()

	// Initial check
	c.check(ctx)
}

func (c *Checker) check(ctx context.Context) {
	statuses := make([]Status, 0, len(c.probes))

	for _, p := range c.probes {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		err := p.Check(pctx)
		cancel()

		s := Status{
			Name:    p.Name,
			Latency: time.Since(start),
			Healthy: err == nil,
		}
		if err != nil {
			s.Error = err.Error()
		}
		statuses = append(statuses, s)
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// GetStatuses returns current health statuses
func (c *Checker) GetStatuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses
}

// AllHealthy reports whether every probe passed its last check.
func (c *Checker) AllHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return len(c.statuses) > 0
}
