package addrspace

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

var (
	lanV4 = netip.MustParsePrefix("206.223.116.0/23")
	lanV6 = netip.MustParsePrefix("2001:504:0:1::/64")
)

func TestCovers(t *testing.T) {
	v4 := netip.MustParseAddr("206.223.116.101")
	v6 := netip.MustParseAddr("2001:504:0:1::65")

	tests := []struct {
		name    string
		prefix  netip.Prefix
		address any
		want    bool
	}{
		{"ipv4 string inside", lanV4, "206.223.117.1", true},
		{"ipv4 string outside", lanV4, "206.223.118.1", false},
		{"netip.Addr", lanV4, v4, true},
		{"*netip.Addr", lanV4, &v4, true},
		{"nil *netip.Addr", lanV4, (*netip.Addr)(nil), false},
		{"net.IP 16-byte v4", lanV4, net.ParseIP("206.223.116.5"), true},
		{"ipv6 inside", lanV6, v6, true},
		{"ipv6 outside", lanV6, "2001:504:0:2::1", false},
		{"protocol mismatch v4 in v6", lanV6, v4, false},
		{"protocol mismatch v6 in v4", lanV4, "2001:504:0:1::1", false},
		{"mapped v6 string stays v6", lanV4, "::ffff:206.223.116.1", false},
		{"garbage string", lanV4, "not-an-ip", false},
		{"unsupported type", lanV4, 42, false},
		{"zero prefix", netip.Prefix{}, v4, false},
		{"zero addr", lanV4, netip.Addr{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Covers(tt.prefix, tt.address))
		})
	}
}

func TestNetworkIsPDBValid(t *testing.T) {
	valid := []string{"206.223.116.0/23", "2001:504:0:1::/64", "2001:7f8::/64", "80.81.192.0/21"}
	for _, s := range valid {
		t.Run("valid "+s, func(t *testing.T) {
			assert.NoError(t, NetworkIsPDBValid(netip.MustParsePrefix(s)))
		})
	}

	invalid := []string{
		"224.0.0.0/24",
		"10.0.0.0/24",
		"192.168.1.0/24",
		"127.0.0.0/8",
		"2002:c000::/32",
		"3ffe:1::/32",
		"fec0::/16",
		"fe80::/64",
		"ff02::/16",
		"2001:db8::/32",
		"fd00::/8",
	}
	for _, s := range invalid {
		t.Run("invalid "+s, func(t *testing.T) {
			err := NetworkIsPDBValid(netip.MustParsePrefix(s))
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, apperrors.FieldPrefix, apperrors.ValidationField(err))
		})
	}

	assert.Error(t, NetworkIsPDBValid(netip.Prefix{}))
}

func TestSet(t *testing.T) {
	set, err := NewSet([]netip.Prefix{lanV4, lanV6, {}})
	require.NoError(t, err)

	assert.True(t, set.Contains("206.223.116.9"))
	assert.True(t, set.Contains(netip.MustParseAddr("2001:504:0:1::9")))
	assert.False(t, set.Contains("206.223.120.9"))
	assert.False(t, set.Contains("junk"))
	assert.Equal(t, []netip.Prefix{lanV4}, set.Prefixes(IPv4))
	assert.False(t, set.Empty(IPv6))

	v4only, err := NewSet([]netip.Prefix{lanV4})
	require.NoError(t, err)
	assert.True(t, v4only.Empty(IPv6))
	assert.False(t, v4only.Contains("2001:504:0:1::9"))
}

func TestProtocolOf(t *testing.T) {
	assert.Equal(t, IPv4, ProtocolOf(netip.MustParseAddr("1.2.3.4")))
	assert.Equal(t, IPv6, ProtocolOfPrefix(lanV6))
}
