package domain

// Result is the outcome of one push to one subscription.
type Result struct {
	Endpoint     string
	Success      bool
	StatusCode   int
	Error        string
	ShouldRemove bool
}

// Summary aggregates a batch. Partial success is the normal case.
type Summary struct {
	Sent             int
	Failed           int
	ExpiredEndpoints []string
	Results          []Result
}

// Summarize folds per-subscription results into a batch summary, preserving input order
// for the expired endpoint list.
func Summarize(results []Result) Summary {
	summary := Summary{
		ExpiredEndpoints: make([]string, 0),
		Results:          results,
	}

	for _, r := range results {
		if r.Success {
			summary.Sent++
			continue
		}

		summary.Failed++
		if r.ShouldRemove {
			summary.ExpiredEndpoints = append(summary.ExpiredEndpoints, r.Endpoint)
		}
	}

	return summary
}
