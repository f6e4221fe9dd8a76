package report

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConnection marks a worker whose feed connection could not be opened.
	ErrConnection = errors.New("feed connection failed")
	// ErrDecode marks a single malformed feed message.
	ErrDecode = errors.New("feed message decode failed")
	// ErrNoData marks a worker whose window closed without a single sample.
	ErrNoData = errors.New("no data points collected")
	// ErrNoSuccessfulWorkers is returned when every worker of a run failed.
	ErrNoSuccessfulWorkers = errors.New("no successful workers")
)

// PriceEvent is one trade observed on the feed.
type PriceEvent struct {
	Symbol    string
	Price     float64
	TradeTime time.Time
}

// Outcome tags a WorkerReport as either an average or a failure.
type Outcome int

const (
	OutcomeAverage Outcome = iota + 1
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAverage:
		return "average"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// WorkerReport is the single terminal result of one sampling worker.
// Average and Samples are only meaningful when Outcome is OutcomeAverage;
// Reason is only set when Outcome is OutcomeFailed.
type WorkerReport struct {
	WorkerID int
	Outcome  Outcome
	Average  float64
	Samples  []float64
	Reason   error
}

// Succeeded builds an average report from the collected samples. An empty
// sample list yields a failed report carrying ErrNoData.
func Succeeded(workerID int, samples []float64) WorkerReport {
	avg, ok := Mean(samples)
	if !ok {
		return Failed(workerID, ErrNoData)
	}
	owned := make([]float64, len(samples))
	copy(owned, samples)
	return WorkerReport{
		WorkerID: workerID,
		Outcome:  OutcomeAverage,
		Average:  avg,
		Samples:  owned,
	}
}

// Failed builds a failure report.
func Failed(workerID int, reason error) WorkerReport {
	if reason == nil {
		reason = errors.New("unknown failure")
	}
	return WorkerReport{WorkerID: workerID, Outcome: OutcomeFailed, Reason: reason}
}

// OK reports whether the worker produced an average.
func (r WorkerReport) OK() bool {
	return r.Outcome == OutcomeAverage
}

// GlobalReport combines the local averages of every successful worker.
type GlobalReport struct {
	ClientAverages []float64
	GlobalAverage  float64
	Succeeded      []int
	Failed         []int
}

// Mean returns the unweighted arithmetic mean of values.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}
