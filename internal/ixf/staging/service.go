package staging

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// Service loads staging records and pairs them with their context
type Service struct {
	records  Repository
	lans     peering.IXLanRepository
	resolver *Resolver
	logger   *applogger.Logger
	now      func() time.Time
}

// NewService creates a staging service
func NewService(records Repository, lans peering.IXLanRepository, resolver *Resolver, logger *applogger.Logger) *Service {
	return &Service{
		records:  records,
		lans:     lans,
		resolver: resolver,
		logger:   logger.WithComponent("staging.service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Instantiate returns the staging record for (asn, ip4, ip6) on lan with
// fields of the current fetch assigned. An existing record keeps its previous
// values in Previous and PreviousData and gets its fetched time written; a
// missing one is returned unsaved.
func (s *Service) Instantiate(ctx context.Context, lan *peering.IXLan, asn int64, ip4, ip6 netip.Addr, fields Fields) (*Member, error) {
	op := s.logger.StartOp(ctx, "Instantiate",
		slog.Int64("lan_id", lan.ID),
		slog.Int64("asn", asn),
		slog.String("ipaddr4", peering.AddrString(ip4)),
		slog.String("ipaddr6", peering.AddrString(ip6)))

	fetched := fields.Fetched
	if fetched.IsZero() {
		fetched = s.now()
	}

	rec, err := s.records.Find(ctx, lan.ID, asn, ip4, ip6)
	switch {
	case err == nil:
		prev := rec.Mirror()
		rec.Previous = &prev
		rec.PreviousData = rec.Data
		if err := s.records.UpdateFetched(ctx, rec.ID, fetched); err != nil {
			err = apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to update fetched time", true)
			op.Fail(err, "failed to update fetched time")
			return nil, err
		}
	case errors.Is(err, ErrRecordNotFound):
		rec = &Record{ASN: asn, IPAddr4: ip4, IPAddr6: ip6}
	default:
		err = apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to look up staging record", true)
		op.Fail(err, "failed to look up staging record")
		return nil, err
	}

	rec.IXLanID = lan.ID
	rec.Fetched = fetched
	rec.Data = fields.Data
	rec.Speed = 0
	if fields.Speed != nil {
		rec.Speed = *fields.Speed
	}
	rec.Operational = true
	if fields.Operational != nil {
		rec.Operational = *fields.Operational
	}
	rec.IsRSPeer = false
	if fields.IsRSPeer != nil {
		rec.IsRSPeer = *fields.IsRSPeer
	}

	member, err := s.resolve(ctx, lan, rec)
	if err != nil {
		op.Fail(err, "failed to resolve staging context")
		return nil, err
	}

	op.Complete("staging record instantiated",
		slog.Int64("staging_id", rec.ID),
		slog.Bool("new", rec.IsNew()))
	return member, nil
}

// Get loads a saved record with its context
func (s *Service) Get(ctx context.Context, id int64) (*Member, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lan, err := s.lans.Get(ctx, rec.IXLanID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, lan, rec)
}

// ListByIXLan loads every saved record of a LAN with its context
func (s *Service) ListByIXLan(ctx context.Context, lan *peering.IXLan) ([]*Member, error) {
	recs, err := s.records.ListByIXLan(ctx, lan.ID)
	if err != nil {
		return nil, apperrors.WrapWithDomain(err, apperrors.DomainStaging, apperrors.ErrCodeDatabase, "failed to list staging records", true)
	}
	members := make([]*Member, 0, len(recs))
	for _, rec := range recs {
		m, err := s.resolve(ctx, lan, rec)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func (s *Service) resolve(ctx context.Context, lan *peering.IXLan, rec *Record) (*Member, error) {
	c, err := s.resolver.Resolve(ctx, lan, rec)
	if err != nil {
		return nil, err
	}
	return &Member{Record: rec, Context: c}, nil
}
