package peering

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/addrspace"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Reconciler merges proposed sessions into the existing sessions of a LAN
type Reconciler struct {
	service  Service
	sessions SessionRepository
	prefixes PrefixRepository
	tx       Transactor
	logger   *applogger.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(service Service, sessions SessionRepository, prefixes PrefixRepository, tx Transactor, logger *applogger.Logger) *Reconciler {
	return &Reconciler{
		service:  service,
		sessions: sessions,
		prefixes: prefixes,
		tx:       tx,
		logger:   logger.WithComponent("peering.reconciler"),
	}
}

// PrefixSet returns the active prefixes of a LAN
func (r *Reconciler) PrefixSet(ctx context.Context, lanID int64) (*addrspace.Set, error) {
	prefixes, err := r.prefixes.ListByIXLan(ctx, lanID)
	if err != nil {
		return nil, apperrors.WrapWithDomain(err, apperrors.DomainSession, apperrors.ErrCodeDatabase, "failed to load prefixes", true)
	}
	return ActivePrefixSet(prefixes)
}

// Validate runs the full validation of s against the prefixes of its LAN
func (r *Reconciler) Validate(ctx context.Context, s *Session) error {
	set, err := r.PrefixSet(ctx, s.IXLanID)
	if err != nil {
		return err
	}
	return ValidateSession(s, set)
}

// AddNetIXLan creates or updates the session of lan matching the proposal.
// Nothing is saved unless the merged session validates, and every save of
// one call happens in a single transaction.
func (r *Reconciler) AddNetIXLan(ctx context.Context, lan *IXLan, p Proposal, opts AddOptions) (*AddResult, error) {
	op := r.logger.StartOp(ctx, "AddNetIXLan",
		slog.Int64("lan_id", lan.ID),
		slog.Int64("asn", p.ASN),
		slog.String("ipaddr4", AddrString(p.IPAddr4)),
		slog.String("ipaddr6", AddrString(p.IPAddr6)),
		slog.Bool("save", opts.Save))

	var result *AddResult
	run := func(ctx context.Context) error {
		var err error
		result, err = r.addNetIXLan(ctx, lan, p, opts, op)
		return err
	}

	var err error
	if (opts.Save || opts.SaveOthers) && r.tx != nil {
		err = r.tx.ExecTx(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, err
	}

	op.Session(result.Session.ID).Complete("session reconciled",
		slog.Bool("created", result.Created),
		slog.Any("changed", result.Changed))
	return result, nil
}

func (r *Reconciler) addNetIXLan(ctx context.Context, lan *IXLan, p Proposal, opts AddOptions, op *applogger.Operation) (*AddResult, error) {
	set, err := r.PrefixSet(ctx, lan.ID)
	if err != nil {
		op.Fail(err, "failed to load prefixes")
		return nil, err
	}

	for _, addr := range []netip.Addr{p.IPAddr4, p.IPAddr6} {
		if addr.IsValid() && !set.Contains(addr) {
			err := NewPrefixMismatchError(addr)
			op.Fail(err, "address does not match any prefix")
			return nil, err
		}
	}

	holders4, err := r.holders(ctx, p.IPAddr4)
	if err != nil {
		op.Fail(err, "failed to look up ipv4 holders")
		return nil, err
	}
	holders6, err := r.holders(ctx, p.IPAddr6)
	if err != nil {
		op.Fail(err, "failed to look up ipv6 holders")
		return nil, err
	}

	if err := otherLANConflict(lan.ID, p.IPAddr4, holders4); err != nil {
		op.Fail(err, "address already exists in another lan")
		return nil, err
	}
	if err := otherLANConflict(lan.ID, p.IPAddr6, holders6); err != nil {
		op.Fail(err, "address already exists in another lan")
		return nil, err
	}

	result := &AddResult{}
	match4 := pickOnLAN(lan.ID, holders4)
	match6 := pickOnLAN(lan.ID, holders6)

	// released lost an address to target and is saved before it
	var released *Session
	var target *Session
	switch {
	case match4 != nil && match6 != nil && match4.ID != match6.ID:
		match6.IPAddr6 = netip.Addr{}
		released = match6
		result.Log = append(result.Log, fmt.Sprintf("Ip address %s moved from netixlan %d to netixlan %d", p.IPAddr6, match6.ID, match4.ID))
		target = match4
	case match4 != nil:
		target = match4
	case match6 != nil:
		target = match6
	default:
		target = NewSession(lan.ID, 0, 0)
		result.Created = true
		result.Reason = ReasonNewAddress
	}

	reclaimed := reclaim(target, p.ASN, p.IPAddr4, target.IPAddr4, holders4, true, result)
	reclaimed = append(reclaimed, reclaim(target, p.ASN, p.IPAddr6, target.IPAddr6, holders6, false, result)...)

	result.Changed = syncFields(target, p)

	if err := ValidateSession(target, set); err != nil {
		op.Fail(err, "session validation failed")
		return nil, err
	}

	if released != nil && opts.Save {
		if err := r.service.Save(ctx, released); err != nil {
			op.Fail(err, "failed to release ipv6 from other session")
			return nil, err
		}
	}
	if opts.Save || opts.SaveOthers {
		for _, other := range reclaimed {
			if err := r.service.Save(ctx, other); err != nil {
				op.Fail(err, "failed to reclaim address", slog.Int64("session_id", other.ID))
				return nil, err
			}
		}
	}

	if len(result.Changed) > 0 || target.IsDeleted() {
		if target.IsDeleted() {
			err = target.Resurrect()
		} else {
			err = target.Activate()
		}
		if err != nil {
			op.Fail(err, "invalid state transition")
			return nil, err
		}
		if opts.Save {
			if err := r.service.Save(ctx, target); err != nil {
				op.Fail(err, "failed to save session")
				return nil, err
			}
		}
	}

	result.Session = target
	return result, nil
}

func (r *Reconciler) holders(ctx context.Context, addr netip.Addr) ([]*Session, error) {
	if !addr.IsValid() {
		return nil, nil
	}
	var (
		found []*Session
		err   error
	)
	if addr.Is4() {
		found, err = r.sessions.FindByIPv4(ctx, addr)
	} else {
		found, err = r.sessions.FindByIPv6(ctx, addr)
	}
	if err != nil {
		return nil, apperrors.WrapWithDomain(err, apperrors.DomainSession, apperrors.ErrCodeDatabase, "failed to look up address holders", true)
	}
	return found, nil
}

// reclaim strips addr from soft-deleted sessions of other networks when the
// target does not already hold it and returns the stripped sessions.
func reclaim(target *Session, asn int64, addr, current netip.Addr, holders []*Session, v4 bool, result *AddResult) []*Session {
	if !addr.IsValid() || addr == current {
		return nil
	}
	var stripped []*Session
	for _, other := range holders {
		if other == target || (target.Persisted() && other.ID == target.ID) {
			continue
		}
		if !other.IsDeleted() || other.ASN == asn {
			continue
		}
		if (v4 && !other.IPAddr4.IsValid()) || (!v4 && !other.IPAddr6.IsValid()) {
			continue
		}
		if v4 {
			other.IPAddr4 = netip.Addr{}
		} else {
			other.IPAddr6 = netip.Addr{}
		}
		other.Notes = ClaimedNote(addr)
		stripped = append(stripped, other)
		result.Log = append(result.Log, fmt.Sprintf("%s (netixlan %d)", other.Notes, other.ID))
	}
	return stripped
}

func otherLANConflict(lanID int64, addr netip.Addr, holders []*Session) error {
	for _, s := range holders {
		if s.IsActive() && s.IXLanID != lanID {
			return NewOtherLANConflictError(addr, s)
		}
	}
	return nil
}

// pickOnLAN prefers an active holder on the LAN, then the oldest one
func pickOnLAN(lanID int64, holders []*Session) *Session {
	var first *Session
	for _, s := range holders {
		if s.IXLanID != lanID {
			continue
		}
		if s.IsActive() {
			return s
		}
		if first == nil {
			first = s
		}
	}
	return first
}

// syncFields copies the proposal onto target and returns the changed fields.
// Speed only overwrites when the proposal carries a positive speed or target has none.
func syncFields(target *Session, p Proposal) []string {
	changed := []string{}

	if target.IPAddr4 != p.IPAddr4 {
		target.IPAddr4 = p.IPAddr4
		changed = append(changed, "ipaddr4")
	}
	if target.IPAddr6 != p.IPAddr6 {
		target.IPAddr6 = p.IPAddr6
		changed = append(changed, "ipaddr6")
	}
	if target.IsRSPeer != p.IsRSPeer {
		target.IsRSPeer = p.IsRSPeer
		changed = append(changed, "is_rs_peer")
	}
	if target.Operational != p.Operational {
		target.Operational = p.Operational
		changed = append(changed, "operational")
	}
	if p.Speed > 0 || target.Speed == nil {
		if target.Speed == nil || *target.Speed != p.Speed {
			target.Speed = IntPtr(p.Speed)
			changed = append(changed, "speed")
		}
	}
	if target.ASN != p.ASN {
		target.ASN = p.ASN
		changed = append(changed, "asn")
	}
	if target.NetworkID != p.NetworkID {
		target.NetworkID = p.NetworkID
		changed = append(changed, "network_id")
	}
	return changed
}
