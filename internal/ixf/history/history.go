// Package history keeps an append-only list of session snapshots in LevelDB.
// Import log entries pin version ids from this store so a run can be rolled back.
package history

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

const (
	prefixVersion = "v/"
	prefixSession = "s/"
	keySequence   = "meta/seq"
)

// ErrVersionNotFound is returned when a version id or session has no snapshot
var ErrVersionNotFound = apperrors.DomainErrVersionNotFound

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("history store is closed")

// Snapshot is the persisted field set of a session
type Snapshot struct {
	NetworkID   int64  `msgpack:"network_id"`
	IXLanID     int64  `msgpack:"ixlan_id"`
	ASN         int64  `msgpack:"asn"`
	IPAddr4     string `msgpack:"ipaddr4"`
	IPAddr6     string `msgpack:"ipaddr6"`
	Speed       *int   `msgpack:"speed"`
	IsRSPeer    bool   `msgpack:"is_rs_peer"`
	Operational bool   `msgpack:"operational"`
	Status      string `msgpack:"status"`
	Notes       string `msgpack:"notes"`
}

// SnapshotOf captures the current fields of s
func SnapshotOf(s *peering.Session) Snapshot {
	snap := Snapshot{
		NetworkID:   s.NetworkID,
		IXLanID:     s.IXLanID,
		ASN:         s.ASN,
		IPAddr4:     peering.AddrString(s.IPAddr4),
		IPAddr6:     peering.AddrString(s.IPAddr6),
		IsRSPeer:    s.IsRSPeer,
		Operational: s.Operational,
		Status:      s.Status.String(),
		Notes:       s.Notes,
	}
	if s.Speed != nil {
		snap.Speed = peering.IntPtr(*s.Speed)
	}
	return snap
}

// ApplyTo overwrites the fields of s with the snapshot. The id and timestamps
// of s are left alone.
func (snap Snapshot) ApplyTo(s *peering.Session) error {
	ip4, err := parseAddr(snap.IPAddr4)
	if err != nil {
		return err
	}
	ip6, err := parseAddr(snap.IPAddr6)
	if err != nil {
		return err
	}
	s.NetworkID = snap.NetworkID
	s.IXLanID = snap.IXLanID
	s.ASN = snap.ASN
	s.IPAddr4 = ip4
	s.IPAddr6 = ip6
	s.Speed = nil
	if snap.Speed != nil {
		s.Speed = peering.IntPtr(*snap.Speed)
	}
	s.IsRSPeer = snap.IsRSPeer
	s.Operational = snap.Operational
	s.Status = peering.State(snap.Status)
	s.Notes = snap.Notes
	return nil
}

func parseAddr(s string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to parse snapshot address %q: %w", s, err)
	}
	return a, nil
}

// Version is one recorded snapshot of a session
type Version struct {
	ID        int64     `msgpack:"id"`
	SessionID int64     `msgpack:"session_id"`
	Snapshot  Snapshot  `msgpack:"snapshot"`
	User      string    `msgpack:"user"`
	Comment   string    `msgpack:"comment"`
	Created   time.Time `msgpack:"created"`
}

type revisionKey struct{}

type revision struct {
	user    string
	comment string
}

// WithRevision attaches the acting user and a comment to every version
// recorded with the returned context.
func WithRevision(ctx context.Context, user, comment string) context.Context {
	return context.WithValue(ctx, revisionKey{}, revision{user: user, comment: comment})
}

func revisionFrom(ctx context.Context) revision {
	if r, ok := ctx.Value(revisionKey{}).(revision); ok {
		return r
	}
	return revision{}
}

// Store is a LevelDB backed version store. It implements peering.VersionRecorder.
// Versions recorded inside a SQL transaction are held back until it commits
// and dropped when it rolls back.
type Store struct {
	db      *leveldb.DB
	mu      sync.Mutex
	seq     int64
	path    string
	closed  bool
	pending map[any]*pendingWrites
	logger  *applogger.Logger
	now     func() time.Time
}

// pendingWrites are the versions of one open transaction
type pendingWrites struct {
	batch    *leveldb.Batch
	versions map[int64]*Version
	sessions map[int64][]int64
}

var _ peering.VersionRecorder = (*Store)(nil)

// Open opens or creates the version store at path
func Open(path string, logger *applogger.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		return nil, apperrors.NewHistoryError(apperrors.ErrCodeDatabase, "failed to open history store", false, err).
			WithMetadata("path", path)
	}

	s := &Store{
		db:      db,
		path:    path,
		pending: make(map[any]*pendingWrites),
		logger:  logger.WithComponent("history"),
		now:     func() time.Time { return time.Now().UTC() },
	}

	raw, err := db.Get([]byte(keySequence), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to read history sequence: %w", err)
	default:
		s.seq = int64(binary.BigEndian.Uint64(raw))
	}
	return s, nil
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the store's directory
func (s *Store) Path() string {
	return s.path
}

func versionKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixVersion, id))
}

func sessionPrefix(sessionID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", prefixSession, sessionID))
}

func indexKey(sessionID, id int64) []byte {
	return append(sessionPrefix(sessionID), []byte(fmt.Sprintf("%020d", id))...)
}

// Record stores a snapshot of sess and returns the new version id
func (s *Store) Record(ctx context.Context, sess *peering.Session) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !sess.Persisted() {
		return 0, apperrors.NewHistoryError(apperrors.ErrCodeValidation, "cannot record a version of an unsaved session", false, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	rev := revisionFrom(ctx)
	v := Version{
		ID:        s.seq + 1,
		SessionID: sess.ID,
		Snapshot:  SnapshotOf(sess),
		User:      rev.user,
		Comment:   rev.comment,
		Created:   s.now(),
	}
	value, err := msgpack.Marshal(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to encode version: %w", err)
	}
	s.seq = v.ID

	if token := db.TxToken(ctx); token != nil {
		p, ok := s.pending[token]
		if !ok {
			p = &pendingWrites{
				batch:    new(leveldb.Batch),
				versions: make(map[int64]*Version),
				sessions: make(map[int64][]int64),
			}
			s.pending[token] = p
			db.OnTxEnd(ctx, func(committed bool) { s.finish(token, committed) })
		}
		p.batch.Put(versionKey(v.ID), value)
		p.batch.Put(indexKey(v.SessionID, v.ID), nil)
		p.versions[v.ID] = &v
		p.sessions[v.SessionID] = append(p.sessions[v.SessionID], v.ID)
	} else {
		batch := new(leveldb.Batch)
		batch.Put(versionKey(v.ID), value)
		batch.Put(indexKey(v.SessionID, v.ID), nil)
		batch.Put([]byte(keySequence), sequenceValue(s.seq))
		if err := s.db.Write(batch, nil); err != nil {
			return 0, apperrors.NewHistoryError(apperrors.ErrCodeDatabase, "failed to write version", true, err).
				WithMetadata("session_id", sess.ID)
		}
	}

	s.logger.WithContext(ctx).Debug("session version recorded",
		slog.Int64("session_id", v.SessionID),
		slog.Int64("version_id", v.ID))
	return v.ID, nil
}

func sequenceValue(seq int64) []byte {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, uint64(seq))
	return raw
}

// finish writes or drops the versions held back for a transaction
func (s *Store) finish(token any, committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[token]
	if !ok {
		return
	}
	delete(s.pending, token)
	if !committed {
		s.logger.Debug("dropped versions of rolled back transaction", slog.Int("versions", len(p.versions)))
		return
	}
	if s.closed {
		s.logger.Error("history store closed before versions were written", slog.Int("versions", len(p.versions)))
		return
	}
	p.batch.Put([]byte(keySequence), sequenceValue(s.seq))
	if err := s.db.Write(p.batch, nil); err != nil {
		s.logger.ErrorCtx(context.Background(), "failed to write versions of committed transaction", err,
			slog.Int("versions", len(p.versions)))
	}
}

// pendingFor returns the held back versions visible to ctx
func (s *Store) pendingFor(ctx context.Context) *pendingWrites {
	token := db.TxToken(ctx)
	if token == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[token]
}

// Get retrieves a version by id
func (s *Store) Get(ctx context.Context, id int64) (*Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p := s.pendingFor(ctx); p != nil {
		if v, ok := p.versions[id]; ok {
			held := *v
			return &held, nil
		}
	}
	raw, err := s.db.Get(versionKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	var v Version
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode version %d: %w", id, err)
	}
	return &v, nil
}

// Latest returns the newest version of a session
func (s *Store) Latest(ctx context.Context, sessionID int64) (*Version, error) {
	if p := s.pendingFor(ctx); p != nil {
		if ids := p.sessions[sessionID]; len(ids) > 0 {
			return s.Get(ctx, ids[len(ids)-1])
		}
	}

	iter := s.db.NewIterator(util.BytesPrefix(sessionPrefix(sessionID)), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, fmt.Errorf("failed to iterate versions: %w", err)
		}
		return nil, ErrVersionNotFound
	}
	id, err := idFromIndexKey(iter.Key())
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// List returns every version of a session, oldest first
func (s *Store) List(ctx context.Context, sessionID int64) ([]*Version, error) {
	iter := s.db.NewIterator(util.BytesPrefix(sessionPrefix(sessionID)), nil)
	defer iter.Release()

	var versions []*Version
	for iter.Next() {
		id, err := idFromIndexKey(iter.Key())
		if err != nil {
			return nil, err
		}
		v, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}
	if p := s.pendingFor(ctx); p != nil {
		for _, id := range p.sessions[sessionID] {
			versions = append(versions, p.versions[id])
		}
	}
	return versions, nil
}

func idFromIndexKey(key []byte) (int64, error) {
	k := string(key)
	i := strings.LastIndexByte(k, '/')
	id, err := strconv.ParseInt(k[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed version index key %q: %w", k, err)
	}
	return id, nil
}
