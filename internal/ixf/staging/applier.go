package staging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/history"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// ApplyOptions controls Apply
type ApplyOptions struct {
	User    string
	Comment string
	// Save persists the session change and resolves the staging record
	Save bool
}

// ApplyResult is the outcome of Apply. Version ids are zero when nothing was
// recorded; a zero VersionBefore with a non-zero VersionAfter means the
// session was created.
type ApplyResult struct {
	Action        Action
	Session       *peering.Session
	VersionBefore int64
	VersionAfter  int64
}

// Applier carries out the action of a staging record on the sessions
type Applier struct {
	reconciler *peering.Reconciler
	sessions   peering.Service
	versions   VersionStore
	router     *Router
	logger     *applogger.Logger
}

// NewApplier creates an applier. versions may be nil, then no version ids are reported.
func NewApplier(reconciler *peering.Reconciler, sessions peering.Service, versions VersionStore, router *Router, logger *applogger.Logger) *Applier {
	return &Applier{
		reconciler: reconciler,
		sessions:   sessions,
		versions:   versions,
		router:     router,
		logger:     logger.WithComponent("staging.applier"),
	}
}

// Apply performs the member's action. With Save the staging record is
// resolved afterwards.
func (a *Applier) Apply(ctx context.Context, m *Member, opts ApplyOptions) (*ApplyResult, error) {
	action := m.Action()
	op := a.logger.StartOp(ctx, "Apply",
		slog.Int64("staging_id", m.Record.ID),
		slog.Int64("asn", m.Record.ASN),
		slog.String("action", string(action)),
		slog.Bool("save", opts.Save))

	ctx = history.WithRevision(ctx, opts.User, opts.Comment)
	result := &ApplyResult{Action: action}

	var err error
	switch action {
	case ActionAdd:
		err = a.add(ctx, m, opts, result)
	case ActionModify:
		err = a.modify(ctx, m, opts, result)
	case ActionDelete:
		err = a.remove(ctx, m, opts, result)
	}
	if err != nil {
		op.Fail(err, "failed to apply staging record")
		return nil, err
	}

	if opts.Save {
		if action != ActionNoop {
			if result.VersionAfter, err = a.latest(ctx, result.Session); err != nil {
				op.Fail(err, "failed to look up recorded version")
				return nil, err
			}
		}
		if _, err := a.router.SetResolved(ctx, m); err != nil {
			op.Fail(err, "failed to resolve staging record")
			return nil, err
		}
	}

	if result.Session == nil {
		result.Session = m.Session()
	}
	op.Complete("staging record applied",
		slog.Int64("session_id", result.Session.ID),
		slog.Int64("version_before", result.VersionBefore),
		slog.Int64("version_after", result.VersionAfter))
	return result, nil
}

func (a *Applier) add(ctx context.Context, m *Member, opts ApplyOptions, result *ApplyResult) error {
	proposal := peering.ProposalFromSession(m.Session())
	if m.Context.Network != nil {
		proposal.NetworkID = m.Context.Network.ID
	}
	proposal.ASN = m.Record.ASN
	proposal.IPAddr4 = m.Record.IPAddr4
	proposal.IPAddr6 = m.Record.IPAddr6
	proposal.Speed = m.Record.Speed
	proposal.IsRSPeer = m.Record.IsRSPeer
	proposal.Operational = m.Record.Operational

	if opts.Save {
		// find the session the reconciler will target so its prior state is pinned
		probe, err := a.reconciler.AddNetIXLan(ctx, m.Context.LAN, proposal, peering.DryRun())
		if err != nil {
			return err
		}
		if probe.Session.Persisted() {
			if result.VersionBefore, err = a.baseline(ctx, probe.Session.ID); err != nil {
				return err
			}
		}
	}

	res, err := a.reconciler.AddNetIXLan(ctx, m.Context.LAN, proposal, peering.AddOptions{Save: opts.Save, SaveOthers: opts.Save})
	if err != nil {
		return err
	}
	m.Context.Session = res.Session
	result.Session = res.Session
	return nil
}

func (a *Applier) modify(ctx context.Context, m *Member, opts ApplyOptions, result *ApplyResult) error {
	s := m.Session()
	changes := m.Changes()

	if opts.Save {
		var err error
		if result.VersionBefore, err = a.baseline(ctx, s.ID); err != nil {
			return err
		}
	}

	if _, ok := changes["speed"]; ok {
		s.Speed = peering.IntPtr(m.Record.Speed)
	}
	if _, ok := changes["is_rs_peer"]; ok {
		s.IsRSPeer = m.Record.IsRSPeer
	}
	s.Operational = m.Record.Operational

	if err := peering.ValidateSession(s, m.Context.Prefixes); err != nil {
		return err
	}
	result.Session = s
	if !opts.Save {
		return nil
	}
	return a.sessions.Save(ctx, s)
}

func (a *Applier) remove(ctx context.Context, m *Member, opts ApplyOptions, result *ApplyResult) error {
	s := m.Session()
	result.Session = s
	if !opts.Save {
		return s.SoftDelete()
	}
	var err error
	if result.VersionBefore, err = a.baseline(ctx, s.ID); err != nil {
		return err
	}
	return a.sessions.SoftDelete(ctx, s)
}

// baseline returns the newest version of a session, recording the current
// state first when the session has no history yet.
func (a *Applier) baseline(ctx context.Context, sessionID int64) (int64, error) {
	if a.versions == nil {
		return 0, nil
	}
	v, err := a.versions.Latest(ctx, sessionID)
	if err == nil {
		return v.ID, nil
	}
	if !errors.Is(err, history.ErrVersionNotFound) {
		return 0, err
	}
	s, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return a.versions.Record(ctx, s)
}

func (a *Applier) latest(ctx context.Context, s *peering.Session) (int64, error) {
	if a.versions == nil || s == nil || !s.Persisted() {
		return 0, nil
	}
	v, err := a.versions.Latest(ctx, s.ID)
	if errors.Is(err, history.ErrVersionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.WrapWithDomain(err, apperrors.DomainHistory, apperrors.ErrCodeDatabase, "failed to look up latest version", true)
	}
	return v.ID, nil
}

// Approval adapts a member to the queue approval capability: approving
// applies it, denying dismisses it.
type Approval struct {
	member  *Member
	applier *Applier
	user    string
}

var _ peering.Approvable = (*Approval)(nil)

// Approvable wraps m so an operator acting as user can approve or deny it
func (a *Applier) Approvable(m *Member, user string) *Approval {
	return &Approval{member: m, applier: a, user: user}
}

// Approve applies the proposal
func (p *Approval) Approve(ctx context.Context) error {
	_, err := p.applier.Apply(ctx, p.member, ApplyOptions{User: p.user, Comment: "approved", Save: true})
	return err
}

// Deny dismisses the proposal
func (p *Approval) Deny(ctx context.Context) error {
	return p.applier.router.Dismiss(ctx, p.member)
}
