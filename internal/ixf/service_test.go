package ixf_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/config"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dbCfg := db.DefaultConfig()
	dbCfg.Path = filepath.Join(dir, "ixfsync.db")
	return &config.Config{
		Log:          config.LogConfig{Level: "debug", Format: "text"},
		DB:           *dbCfg,
		History:      config.HistoryConfig{Path: filepath.Join(dir, "history")},
		Notification: notify.DefaultConfig(),
		IXF:          config.IXFConfig{Policy: staging.DefaultPolicy()},
	}
}

type fixture struct {
	svc *ixf.Service
	lan *peering.IXLan
	log *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	buf := &bytes.Buffer{}
	logCfg := applogger.DefaultConfig()
	logCfg.Level = applogger.LevelDebug
	svc, err := ixf.NewService(testConfig(t), applogger.NewWithWriter(logCfg, buf))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	c := svc.Components()
	ix := &peering.Exchange{Name: "AMS-IX", TechEmail: "noc@ams-ix.example", PolicyEmail: "policy@ams-ix.example"}
	require.NoError(t, c.Exchanges.Create(ctx, ix))
	lan := &peering.IXLan{ExchangeID: ix.ID, Name: "AMS-IX LAN"}
	require.NoError(t, c.LANs.Create(ctx, lan))
	require.NoError(t, c.Prefixes.Create(ctx, &peering.Prefix{IXLanID: lan.ID, Prefix: netip.MustParsePrefix("195.69.144.0/22")}))

	return &fixture{svc: svc, lan: lan, log: buf}
}

func (f *fixture) addNetwork(t *testing.T, asn int64, allow bool) {
	t.Helper()
	n := &peering.Network{
		ASN:            asn,
		Name:           "Example",
		AllowIXPUpdate: allow,
		Contacts:       []peering.Contact{{Role: peering.RolePolicy, Email: "peering@example.net"}},
	}
	require.NoError(t, f.svc.Components().Networks.Create(context.Background(), n))
}

func exportOf(t *testing.T, asn int64, ip4 string, speed int) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"version": "0.6",
		"member_list": []any{map[string]any{
			"asnum": asn,
			"connection_list": []any{map[string]any{
				"state":     "active",
				"if_list":   []any{map[string]any{"if_speed": speed}},
				"vlan_list": []any{map[string]any{"ipv4": map[string]any{"address": ip4}}},
			}},
		}},
	})
	require.NoError(t, err)
	return payload
}

func TestServiceImportAndRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNetwork(t, 1000, true)

	report, err := f.svc.Import(ctx, f.lan.ID, exportOf(t, 1000, "195.69.144.21", 10000))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	require.NotZero(t, report.ImportLogID)
	assert.Contains(t, f.log.String(), "ixf.import.completed")

	res, err := f.svc.Rollback(ctx, report.ImportLogID, false, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reverted())
	assert.Contains(t, f.log.String(), "ixf.rollback.completed")

	sessions, err := f.svc.Components().SessionRepo.ListByIXLan(ctx, f.lan.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestServiceApplyStagedProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNetwork(t, 2000, false)

	report, err := f.svc.Import(ctx, f.lan.ID, exportOf(t, 2000, "195.69.144.22", 1000))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Staged)

	c := f.svc.Components()
	rec, err := c.StagingRepo.Find(ctx, f.lan.ID, 2000, netip.MustParseAddr("195.69.144.22"), netip.Addr{})
	require.NoError(t, err)

	result, err := f.svc.Apply(ctx, rec.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, staging.ActionAdd, result.Action)
	assert.True(t, result.Session.IsActive())

	_, err = c.StagingRepo.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, staging.ErrRecordNotFound)

	_, err = f.svc.Apply(ctx, rec.ID, "admin")
	assert.ErrorIs(t, err, staging.ErrRecordNotFound)
}

func TestServiceDismissAndRemind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNetwork(t, 3000, false)

	_, err := f.svc.Import(ctx, f.lan.ID, exportOf(t, 3000, "195.69.144.23", 1000))
	require.NoError(t, err)

	// nothing is due yet
	report, err := f.svc.RemindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LANs)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Sent)

	c := f.svc.Components()
	rec, err := c.StagingRepo.Find(ctx, f.lan.ID, 3000, netip.MustParseAddr("195.69.144.23"), netip.Addr{})
	require.NoError(t, err)
	require.NoError(t, f.svc.Dismiss(ctx, rec.ID, "admin"))

	dismissed, err := c.StagingRepo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, dismissed.Dismissed)
}

func TestServiceCloseTwice(t *testing.T) {
	svc, err := ixf.NewService(testConfig(t), applogger.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

func TestServiceRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.Driver = "mysql"
	_, err := ixf.NewService(cfg, applogger.NewNop())
	assert.Error(t, err)
}
