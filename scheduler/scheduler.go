package scheduler

// Package scheduler runs the daily digest on a fixed UTC clock time.
//
// The job lives in jobs.go. Overlapping runs are skipped by the scheduler's
// singleton mode and by the dispatcher's own run lock.
