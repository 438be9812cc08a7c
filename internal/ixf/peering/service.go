package peering

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// service implements the Service interface
type service struct {
	sessions SessionRepository
	networks NetworkRepository
	versions VersionRecorder
	logger   *applogger.Logger
	now      func() time.Time
}

// NewService creates a new session service. versions may be nil.
func NewService(sessions SessionRepository, networks NetworkRepository, versions VersionRecorder, logger *applogger.Logger) Service {
	return &service{
		sessions: sessions,
		networks: networks,
		versions: versions,
		logger:   logger.WithComponent("peering.service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves a session by id
func (s *service) Get(ctx context.Context, id int64) (*Session, error) {
	return s.sessions.Get(ctx, id)
}

// Save creates or updates a session
func (s *service) Save(ctx context.Context, sess *Session) error {
	op := s.logger.StartOp(ctx, "SaveSession", slog.Int64("lan_id", sess.IXLanID))

	if !sess.Status.IsValid() {
		err := apperrors.NewSessionError(apperrors.ErrCodeInvalidTransition, "invalid session state", false, nil).
			WithMetadata("state", sess.Status)
		op.Fail(err, "validation failed")
		return err
	}

	if sess.NetworkID != 0 {
		network, err := s.networks.Get(ctx, sess.NetworkID)
		if err != nil {
			op.Fail(err, "failed to load network")
			return err
		}
		sess.ASN = network.ASN
	}

	now := s.now()
	sess.Updated = now
	var err error
	if sess.Persisted() {
		err = s.sessions.Update(ctx, sess)
	} else {
		sess.Created = now
		err = s.sessions.Create(ctx, sess)
	}
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			err = apperrors.WrapWithDomain(err, apperrors.DomainSession, apperrors.ErrCodeDatabase, "failed to save session", true)
		}
		op.Fail(err, "failed to persist session")
		return err
	}

	if s.versions != nil {
		version, err := s.versions.Record(ctx, sess)
		if err != nil {
			op.Fail(err, "failed to record session version")
			return err
		}
		op.With(slog.Int64("version_id", version))
	}

	op.Session(sess.ID).Complete("session saved", slog.String("status", sess.Status.String()))
	return nil
}

// SoftDelete marks the session deleted and saves it
func (s *service) SoftDelete(ctx context.Context, sess *Session) error {
	if err := sess.SoftDelete(); err != nil {
		return err
	}
	return s.Save(ctx, sess)
}

// HardDelete removes the session row
func (s *service) HardDelete(ctx context.Context, sess *Session) error {
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return apperrors.WrapWithDomain(err, apperrors.DomainSession, apperrors.ErrCodeDatabase, "failed to delete session", true)
	}
	s.logger.WithContext(ctx).Info("session deleted", slog.Int64("session_id", sess.ID))
	return nil
}

// ListByIXLan lists every session of a LAN in any state
func (s *service) ListByIXLan(ctx context.Context, lanID int64) ([]*Session, error) {
	return s.sessions.ListByIXLan(ctx, lanID)
}

// FindOnLAN looks up a session by its exact identity tuple
func (s *service) FindOnLAN(ctx context.Context, lanID, asn int64, ip4, ip6 netip.Addr) (*Session, error) {
	return s.sessions.FindOnLAN(ctx, lanID, asn, ip4, ip6)
}

// NetPresentAtExchange reports whether the network has an active session on any LAN of the exchange
func (s *service) NetPresentAtExchange(ctx context.Context, networkID, exchangeID int64) (bool, error) {
	n, err := s.sessions.CountActiveByNetworkAndExchange(ctx, networkID, exchangeID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
