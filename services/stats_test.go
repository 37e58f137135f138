package services

import (
	"testing"
	"time"

	"civicservice-be/models"

	"github.com/stretchr/testify/assert"
)

func TestAverageResolutionRoundsHalfToEven(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	closed := func(took time.Duration) models.ServiceRequest {
		created := now.Add(-2 * time.Hour)
		return models.ServiceRequest{Status: models.StatusClosed, CreatedAt: created, UpdatedAt: created.Add(took)}
	}

	tests := []struct {
		name string
		took []time.Duration
		want float64
	}{
		{"quarter hour", []time.Duration{15 * time.Minute}, 0.2},
		{"three quarters", []time.Duration{45 * time.Minute}, 0.8},
		{"mean of two", []time.Duration{time.Hour, 2 * time.Hour}, 1.5},
		{"nothing closed", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests []models.ServiceRequest
			for _, d := range tt.took {
				requests = append(requests, closed(d))
			}
			stats := computeStatistics(requests, 0, now)
			assert.InDelta(t, tt.want, stats.AverageResolutionHours, 1e-9)
		})
	}
}
