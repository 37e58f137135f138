package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HealthCheck probes one dependency
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RedisCheck pings a Redis client
func RedisCheck(client *redis.Client) HealthCheck {
	return HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

type HealthController struct {
	Checks  []HealthCheck
	Timeout time.Duration
}

type checkResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type healthReport struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  string        `json:"duration"`
	Checks    []checkResult `json:"checks"`
}

// Health runs every check; any failure makes the report Unhealthy with 503
func (hc *HealthController) Health(c *gin.Context) {
	timeout := hc.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	started := time.Now()
	report := healthReport{Status: "Healthy", Timestamp: started.UTC(), Checks: []checkResult{}}
	for _, check := range hc.Checks {
		t := time.Now()
		result := checkResult{Name: check.Name, Status: "Healthy"}
		if err := check.Check(ctx); err != nil {
			result.Status = "Unhealthy"
			result.Error = err.Error()
			report.Status = "Unhealthy"
		}
		result.Duration = time.Since(t).String()
		report.Checks = append(report.Checks, result)
	}
	report.Duration = time.Since(started).String()

	code := http.StatusOK
	if report.Status != "Healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (hc *HealthController) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Healthy"})
}
