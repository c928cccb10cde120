// Package geo resolves client IP addresses to locations on top of an mmdb
// Reader. It caches results per (optionally anonymized) address and reloads
// the database when the file is replaced.
package geo

import (
	"context"
	"net/netip"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ic-timon/ipgeo/mmdb"
)

type result struct {
	value mmdb.Value
	found bool
}

// Locator answers lookups from a cache backed by one open database.
type Locator struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics
	cache   *expirable.LRU[netip.Addr, result]
	pool    *lookupPool

	mtx    sync.RWMutex
	reader *mmdb.Reader
}

// New opens cfg.DBPath and returns a Locator for it.
func New(cfg Config, logger log.Logger, reg prometheus.Registerer) (*Locator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	l := &Locator{
		cfg:     cfg,
		logger:  log.With(logger, "component", "geo"),
		metrics: newMetrics(reg),
		cache:   expirable.NewLRU[netip.Addr, result](cfg.CacheSize, nil, cfg.CacheTTL),
	}
	r, err := l.open()
	if err != nil {
		return nil, err
	}
	l.reader = r
	l.pool = newLookupPool(l, cfg.BatchWorkers, 1024)
	return l, nil
}

func (l *Locator) open() (*mmdb.Reader, error) {
	cfg := mmdb.DefaultConfig()
	cfg.UseMmap = l.cfg.UseMmap
	r, err := mmdb.Open(l.cfg.DBPath, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open geo database %s", l.cfg.DBPath)
	}
	md := r.Metadata()
	l.metrics.buildEpoch.Set(float64(md.BuildEpoch))
	level.Info(l.logger).Log("msg", "opened geo database", "path", l.cfg.DBPath,
		"type", md.DatabaseType, "ip_version", md.IPVersion, "nodes", md.NodeCount,
		"built", md.BuildTime())
	return r, nil
}

// Lookup returns the record for ip. With anonymization enabled the host bits
// of ip are cleared before lookup, so the record is that of its network.
func (l *Locator) Lookup(ctx context.Context, ip string) (mmdb.Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return mmdb.Value{}, false, err
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		l.metrics.lookups.WithLabelValues(outcomeError).Inc()
		return mmdb.Value{}, false, &mmdb.InputError{Input: ip, Err: mmdb.ErrInvalidAddress}
	}
	addr = addr.Unmap().WithZone("")
	if l.cfg.Anonymize {
		addr = Anonymize(addr)
	}

	if res, ok := l.cache.Get(addr); ok {
		l.metrics.cacheHits.Inc()
		return res.value, res.found, nil
	}

	l.mtx.RLock()
	r := l.reader
	if r == nil {
		l.mtx.RUnlock()
		return mmdb.Value{}, false, mmdb.ErrClosed
	}
	v, found, err := r.LookupAddr(addr)
	if err == nil {
		// Cached results always come from the current reader.
		l.cache.Add(addr, result{value: v, found: found})
	}
	l.mtx.RUnlock()

	switch {
	case err != nil:
		l.metrics.lookups.WithLabelValues(outcomeError).Inc()
		return mmdb.Value{}, false, err
	case found:
		l.metrics.lookups.WithLabelValues(outcomeHit).Inc()
	default:
		l.metrics.lookups.WithLabelValues(outcomeMiss).Inc()
	}
	return v, found, nil
}

// CountryCode returns the ISO 3166-1 code of the country for ip, falling back
// to the registered country. It returns "" when the database has neither.
func (l *Locator) CountryCode(ctx context.Context, ip string) (string, error) {
	v, found, err := l.Lookup(ctx, ip)
	if err != nil || !found {
		return "", err
	}
	return CountryOf(v), nil
}

// CountryOf returns country.iso_code of a record, falling back to
// registered_country.iso_code, or "" if neither is present.
func CountryOf(v mmdb.Value) string {
	for _, key := range []string{"country", "registered_country"} {
		if iso, ok := v.Path(key, "iso_code"); ok {
			if s, ok := iso.AsString(); ok {
				return s
			}
		}
	}
	return ""
}

// Metadata returns the metadata of the loaded database.
func (l *Locator) Metadata() (mmdb.Metadata, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.reader == nil {
		return mmdb.Metadata{}, mmdb.ErrClosed
	}
	return l.reader.Metadata(), nil
}

// Reload opens the database file again and swaps it in. On failure the
// current database stays loaded.
func (l *Locator) Reload() error {
	r, err := l.open()
	if err != nil {
		l.metrics.reloads.WithLabelValues(statusFailure).Inc()
		level.Warn(l.logger).Log("msg", "reload failed, keeping current database", "path", l.cfg.DBPath, "err", err)
		return err
	}

	l.mtx.Lock()
	old := l.reader
	if old == nil {
		l.mtx.Unlock()
		_ = r.Close()
		return mmdb.ErrClosed
	}
	l.reader = r
	l.cache.Purge()
	l.mtx.Unlock()

	l.metrics.reloads.WithLabelValues(statusSuccess).Inc()
	if err := old.Close(); err != nil {
		level.Warn(l.logger).Log("msg", "closing replaced database", "err", err)
	}
	return nil
}

// Close stops the batch workers and closes the database. Lookups after Close
// fail with mmdb.ErrClosed.
func (l *Locator) Close() error {
	l.pool.close()

	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	l.cache.Purge()
	return err
}
