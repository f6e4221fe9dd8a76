package storage

import (
	"time"
)

// WorkerRecord is the persisted outcome of one successful sampling worker.
type WorkerRecord struct {
	WorkerID  int       `json:"worker_id"`
	RunID     string    `json:"run_id,omitempty"`
	Prices    []float64 `json:"prices"`
	Average   float64   `json:"average"`
	CreatedAt time.Time `json:"created_at"`
}

// GlobalRecord is the persisted result of one aggregation.
type GlobalRecord struct {
	RunID          string    `json:"run_id,omitempty"`
	ClientAverages []float64 `json:"client_averages"`
	GlobalAverage  float64   `json:"global_average"`
	CreatedAt      time.Time `json:"created_at"`
}
