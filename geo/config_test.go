package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg.DBPath = "/var/lib/ipgeo/GeoLite2-Country.mmdb"
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.CacheSize = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.CacheTTL = -time.Second
	require.Error(t, bad.Validate())
}
