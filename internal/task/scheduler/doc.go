// Package scheduler fires named jobs at wall-clock times in one configured
// timezone, on top of robfig/cron.
//
// Jobs run on cron's goroutines with panic recovery and skip-if-still-running
// semantics; each run gets its own timeout and lands in a bounded history.
package scheduler
