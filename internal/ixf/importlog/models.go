// Package importlog records the session changes of import runs and rolls them back.
package importlog

import (
	"context"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/history"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// ErrLogNotFound is returned for unknown import logs
var ErrLogNotFound = apperrors.DomainErrImportLogNotFound

// Log is one import run on one LAN that changed sessions
type Log struct {
	ID      int64
	IXLanID int64
	RunID   string
	Created time.Time
	Entries []*Entry
}

// Entry pins one session change to the snapshots around it. A zero
// VersionBefore means the change created the session.
type Entry struct {
	ID            int64
	LogID         int64
	SessionID     int64
	VersionBefore int64
	VersionAfter  int64
	Action        string
	Reason        string
	Created       time.Time
}

// RollbackStatus tells whether an entry can be reverted
type RollbackStatus int

const (
	// StatusRevertible means nothing touched the session since the entry
	StatusRevertible RollbackStatus = 0
	// StatusChanged means the session changed after the entry
	StatusChanged RollbackStatus = 1
	// StatusConflict means reverting would reuse an address held by another active session
	StatusConflict RollbackStatus = 2
)

func (s RollbackStatus) String() string {
	switch s {
	case StatusRevertible:
		return "revertible"
	case StatusChanged:
		return "changed"
	case StatusConflict:
		return "conflict"
	}
	return "unknown"
}

// Repository defines data access for import logs
type Repository interface {
	Create(ctx context.Context, l *Log) error
	AddEntry(ctx context.Context, e *Entry) error
	// Get returns a log with its entries
	Get(ctx context.Context, id int64) (*Log, error)
	ListByIXLan(ctx context.Context, lanID int64) ([]*Log, error)
}

// VersionSource reads session snapshots
type VersionSource interface {
	Get(ctx context.Context, id int64) (*history.Version, error)
	Latest(ctx context.Context, sessionID int64) (*history.Version, error)
}

// Transactor runs fn in one transaction
type Transactor interface {
	ExecTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RollbackOptions controls Rollback
type RollbackOptions struct {
	// Force also reverts entries in conflict. Addresses held by another
	// active session are dropped from the restored session.
	Force bool
	User  string
}

// EntryOutcome is what Rollback did with one entry
type EntryOutcome struct {
	Entry    *Entry
	Status   RollbackStatus
	Reverted bool
	Deleted  bool
	Note     string
}

// RollbackResult collects the entry outcomes, newest entry first
type RollbackResult struct {
	LogID    int64
	Outcomes []EntryOutcome
}

// Reverted counts reverted or deleted entries
func (r *RollbackResult) Reverted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Reverted || o.Deleted {
			n++
		}
	}
	return n
}

// Skipped counts entries left alone
func (r *RollbackResult) Skipped() int {
	return len(r.Outcomes) - r.Reverted()
}
