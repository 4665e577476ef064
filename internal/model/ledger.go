package model

import "time"

// Ledger entry sources.
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// UsageLedgerEntry is one row of the append-only usage log. UsageValue is
// the cumulative counter reading after the entry was applied, so the entry
// created last always carries the machine's current usage.
type UsageLedgerEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	MachineID  int64     `gorm:"not null;index:idx_ledger_machine_day,priority:1"`
	ObservedOn time.Time `gorm:"not null;index:idx_ledger_machine_day,priority:2"` // calendar day of the observation
	UsageValue float64   `gorm:"not null"`
	Source     string    `gorm:"size:16;not null;index"`
	Note       string    `gorm:"size:512"`
	CreatedAt  time.Time
}

func (UsageLedgerEntry) TableName() string {
	return "usage_ledger_entries"
}
