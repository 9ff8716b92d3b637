package sync

import "time"

// Stats summarizes one sweep
type Stats struct {
	Total    int
	Synced   int
	Failed   int
	Errors   map[string]int // failure message -> count
	Duration time.Duration
}

// Summarize counts the outcomes in results
func Summarize(results []Result) Stats {
	stats := Stats{Total: len(results), Errors: map[string]int{}}
	for _, res := range results {
		if res.Success {
			stats.Synced++
			continue
		}
		stats.Failed++
		if res.Error != nil {
			stats.Errors[*res.Error]++
		}
	}
	return stats
}
