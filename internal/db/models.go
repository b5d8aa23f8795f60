package db

import "time"

const (
	RunStatusRunning = 0
	RunStatusDone    = 1
	RunStatusFailed  = 2
)

// SyncRun is the journal row for one sync run: what was fetched, what got
// uploaded, and how the run ended.
type SyncRun struct {
	RunID      uint `gorm:"primaryKey"`
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     int `gorm:"index"`
	ItemCount  int
	PhotoCount int
	Report     string // category CSV, kept for re-download
	LastError  string
}
