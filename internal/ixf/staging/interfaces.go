package staging

import (
	"context"
	"net/netip"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/history"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// ErrRecordNotFound is returned when no staging record matches
var ErrRecordNotFound = apperrors.DomainErrStagingNotFound

// Repository defines data access for staging records
type Repository interface {
	Create(ctx context.Context, r *Record) error
	// Update writes every column and touches updated
	Update(ctx context.Context, r *Record) error
	// UpdateFetched only writes fetched and leaves updated alone
	UpdateFetched(ctx context.Context, id int64, fetched time.Time) error
	// UpdateBookkeeping writes the log and reminder columns and leaves updated alone
	UpdateBookkeeping(ctx context.Context, r *Record) error
	Get(ctx context.Context, id int64) (*Record, error)
	// Find matches asn and both addresses exactly, unset matching unset
	Find(ctx context.Context, lanID, asn int64, ip4, ip6 netip.Addr) (*Record, error)
	ListByIXLan(ctx context.Context, lanID int64) ([]*Record, error)
	// Delete hard-deletes a record
	Delete(ctx context.Context, id int64) error
}

// Notifier delivers a message and returns one log line per recipient
type Notifier interface {
	Notify(ctx context.Context, m notify.Message, recipients []notify.Recipient) []string
}

// VersionStore records and looks up session snapshots
type VersionStore interface {
	peering.VersionRecorder
	Latest(ctx context.Context, sessionID int64) (*history.Version, error)
}
