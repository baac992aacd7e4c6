package core

import "time"

// RunnerStats represents runtime observability state for a consumer runner.
type RunnerStats struct {
	Name       string
	Type       string
	Pending    int
	Executed   int64
	Closed     bool
	LastTaskAt time.Time
}

// PoolStats represents runtime observability state for an elastic pool.
type PoolStats struct {
	ID         string
	State      string
	MinWorkers int
	MaxWorkers int
	Ceiling    int
	Live       int
	Idle       int
	Active     int
	Queued     int
	Completed  int64
	Running    bool
}
