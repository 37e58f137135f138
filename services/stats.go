package services

import (
	"math"
	"sort"
	"time"

	"civicservice-be/models"
)

const (
	statsWindowDays     = 30
	topNeighborhoodsMax = 5
)

// computeStatistics builds the dashboard rollup from the full request set.
// Status and category maps only contain values that actually occur.
func computeStatistics(requests []models.ServiceRequest, totalUpvotes int64, now time.Time) models.DashboardStats {
	stats := models.DashboardStats{
		TotalRequests:    len(requests),
		TotalUpvotes:     totalUpvotes,
		ByStatus:         map[string]int{},
		ByCategory:       map[string]int{},
		RequestsOverTime: []models.DailyCount{},
		TopNeighborhoods: []models.NeighborhoodCount{},
	}

	windowStart := now.UTC().AddDate(0, 0, -statsWindowDays)
	daily := map[string]int{}

	var closedCount int
	var closedHours float64

	neighborhoodCounts := map[string]int{}
	var neighborhoodOrder []string

	for _, r := range requests {
		stats.ByStatus[r.Status.String()]++
		stats.ByCategory[r.Category.String()]++

		if r.Status == models.StatusOpen || r.Status == models.StatusInProgress {
			stats.OpenRequests++
		}

		created := r.CreatedAt.UTC()
		if !created.Before(windowStart) {
			daily[created.Format("2006-01-02")]++
		}

		if r.Status == models.StatusClosed {
			closedCount++
			closedHours += r.UpdatedAt.Sub(r.CreatedAt).Hours()
		}

		var n string
		if r.Neighborhood != nil && *r.Neighborhood != "" {
			n = *r.Neighborhood
		} else {
			n = ExtractNeighborhood(r.Address)
		}
		if _, seen := neighborhoodCounts[n]; !seen {
			neighborhoodOrder = append(neighborhoodOrder, n)
		}
		neighborhoodCounts[n]++
	}

	for date, count := range daily {
		stats.RequestsOverTime = append(stats.RequestsOverTime, models.DailyCount{Date: date, Count: count})
	}
	sort.Slice(stats.RequestsOverTime, func(i, j int) bool {
		return stats.RequestsOverTime[i].Date < stats.RequestsOverTime[j].Date
	})

	if closedCount > 0 {
		stats.AverageResolutionHours = math.RoundToEven(closedHours/float64(closedCount)*10) / 10
	}

	for _, n := range neighborhoodOrder {
		stats.TopNeighborhoods = append(stats.TopNeighborhoods, models.NeighborhoodCount{
			Neighborhood: n,
			Count:        neighborhoodCounts[n],
		})
	}
	sort.SliceStable(stats.TopNeighborhoods, func(i, j int) bool {
		return stats.TopNeighborhoods[i].Count > stats.TopNeighborhoods[j].Count
	})
	if len(stats.TopNeighborhoods) > topNeighborhoodsMax {
		stats.TopNeighborhoods = stats.TopNeighborhoods[:topNeighborhoodsMax]
	}

	return stats
}
