package models

import "time"

// RunStatus is the overall outcome of a sync run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// SyncResult reports one table (or stage) of one run.
type SyncResult struct {
	Table           string `json:"table"`
	RecordsFetched  int    `json:"records_fetched"`
	RecordsSynced   int    `json:"records_synced"`
	RecordsDropped  int    `json:"records_dropped"`
	DurationMs      int64  `json:"duration_ms"`
	WatermarkBefore string `json:"watermark_before,omitempty"`
	WatermarkAfter  string `json:"watermark_after,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Failed reports whether the table's pipeline returned an error.
func (r SyncResult) Failed() bool {
	return r.Error != ""
}

// RunSummary is the record of one full run.
type RunSummary struct {
	RunID        string       `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Status       RunStatus    `json:"status"`
	Results      []SyncResult `json:"results"`
	RefreshError string       `json:"refresh_error,omitempty"`
}

// Finish stamps the end time and derives the status from the results.
// A run that already failed during setup keeps StatusFailed.
func (s *RunSummary) Finish(now time.Time) {
	s.FinishedAt = now
	if s.Status == StatusFailed {
		return
	}
	s.Status = StatusSuccess
	for _, r := range s.Results {
		if r.Failed() {
			s.Status = StatusPartial
			return
		}
	}
}

// TotalSynced sums RecordsSynced over all results.
func (s *RunSummary) TotalSynced() int {
	total := 0
	for _, r := range s.Results {
		total += r.RecordsSynced
	}
	return total
}

// Result returns the result for table, if present.
func (s *RunSummary) Result(table string) (SyncResult, bool) {
	for _, r := range s.Results {
		if r.Table == table {
			return r, true
		}
	}
	return SyncResult{}, false
}
