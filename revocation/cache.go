package revocation

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/jmhodges/clock"

	idb "github.com/wacapps/vcore/internal/db"

	verrors "github.com/wacapps/vcore/errors"
	"github.com/wacapps/vcore/metrics"
)

// Default clamping window for cached revocation data, per SPEC_FULL.md §4.6.
const (
	MinValid      = time.Hour
	MaxValid      = 7 * 24 * time.Hour
	RefreshShift  = time.Hour
)

// OCSPEntry is a cached OCSP verdict for a certificate chain.
type OCSPEntry struct {
	ChainB64       string
	EndEntityOnly  bool
	Status         Status
	NextUpdate     time.Time
}

// CRLEntry is a cached CRL fetched from a distribution point.
type CRLEntry struct {
	URI        string
	Body       []byte
	NextUpdate time.Time
}

type ocspRow struct {
	ChainB64   string `db:"chain_b64"`
	EndEntity  int64  `db:"end_entity"`
	Status     int64  `db:"status"`
	NextUpdate int64  `db:"next_update"`
}

type crlRow struct {
	URI        string `db:"dp_uri"`
	Body       string `db:"body"`
	NextUpdate int64  `db:"next_update"`
}

// Cache is the persistent key->value revocation cache. All writes clamp the
// candidate next_update into [now+MinValid, now+MaxValid] before they are
// persisted, and run inside a single transaction so concurrent readers
// never observe a torn write.
type Cache struct {
	dbMap idb.DatabaseMap
	clk   clock.Clock
	stats metrics.Scope
}

// NewCache constructs a Cache over dbMap. clk defaults to the real clock
// when nil, matching the teacher's jmhodges/clock injection pattern used
// for testability elsewhere in the corpus. stats starts as a no-op scope;
// WithStats replaces it.
func NewCache(dbMap idb.DatabaseMap, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{dbMap: dbMap, clk: clk, stats: metrics.NewNoopScope()}
}

// WithStats attaches a metrics scope the cache reports hit/miss counts to,
// returning the same Cache for chaining at construction time.
func (c *Cache) WithStats(stats metrics.Scope) *Cache {
	c.stats = stats.NewScope("RevocationCache")
	return c
}

// clamp bounds candidate into [now+MinValid, now+MaxValid].
func clamp(now, candidate time.Time) time.Time {
	min := now.Add(MinValid)
	max := now.Add(MaxValid)
	if candidate.Before(min) {
		return min
	}
	if candidate.After(max) {
		return max
	}
	return candidate
}

// GetOCSP returns the cached OCSP verdict for chainB64, if any.
func (c *Cache) GetOCSP(ctx context.Context, chainB64 string, endEntityOnly bool) (*OCSPEntry, error) {
	var row ocspRow
	err := c.dbMap.SelectOne(&row,
		"SELECT chain_b64, end_entity, status, next_update FROM ocsp_response WHERE chain_b64 = ? AND end_entity = ?",
		chainB64, boolToInt(endEntityOnly))
	if errors.Is(err, sql.ErrNoRows) {
		c.stats.Inc("OCSP.Miss", 1)
		return nil, nil
	}
	if err != nil {
		return nil, verrors.NewCacheError("revocation cache: get ocsp: %s", err)
	}
	c.stats.Inc("OCSP.Hit", 1)
	return &OCSPEntry{
		ChainB64:      row.ChainB64,
		EndEntityOnly: row.EndEntity != 0,
		Status:        Status(row.Status),
		NextUpdate:    time.Unix(row.NextUpdate, 0),
	}, nil
}

// PutOCSP upserts a cached OCSP verdict, clamping candidateNextUpdate.
func (c *Cache) PutOCSP(ctx context.Context, chainB64 string, endEntityOnly bool, status Status, candidateNextUpdate time.Time) error {
	now := c.clk.Now()
	nextUpdate := clamp(now, candidateNextUpdate)

	txn, err := c.dbMap.Begin()
	if err != nil {
		return verrors.NewCacheError("revocation cache: put ocsp: begin: %s", err)
	}

	_, err = txn.Exec("DELETE FROM ocsp_response WHERE chain_b64 = ? AND end_entity = ?",
		chainB64, boolToInt(endEntityOnly))
	if err != nil {
		_ = txn.Rollback()
		return verrors.NewCacheError("revocation cache: put ocsp: delete: %s", err)
	}

	err = txn.Insert(&ocspRow{
		ChainB64:   chainB64,
		EndEntity:  boolToInt(endEntityOnly),
		Status:     int64(status),
		NextUpdate: nextUpdate.Unix(),
	})
	if err != nil {
		_ = txn.Rollback()
		return verrors.NewCacheError("revocation cache: put ocsp: insert: %s", err)
	}

	if err := txn.Commit(); err != nil {
		return verrors.NewCacheError("revocation cache: put ocsp: commit: %s", err)
	}
	return nil
}

// GetCRL returns the cached CRL for a distribution-point URI, if any.
func (c *Cache) GetCRL(ctx context.Context, uri string) (*CRLEntry, error) {
	var row crlRow
	err := c.dbMap.SelectOne(&row,
		"SELECT dp_uri, body, next_update FROM crl_response WHERE dp_uri = ?", uri)
	if errors.Is(err, sql.ErrNoRows) {
		c.stats.Inc("CRL.Miss", 1)
		return nil, nil
	}
	if err != nil {
		return nil, verrors.NewCacheError("revocation cache: get crl: %s", err)
	}
	c.stats.Inc("CRL.Hit", 1)
	body, err := base64.StdEncoding.DecodeString(row.Body)
	if err != nil {
		return nil, verrors.NewCacheError("revocation cache: get crl: corrupt body: %s", err)
	}
	return &CRLEntry{
		URI:        row.URI,
		Body:       body,
		NextUpdate: time.Unix(row.NextUpdate, 0),
	}, nil
}

// PutCRL upserts a cached CRL body, clamping candidateNextUpdate.
func (c *Cache) PutCRL(ctx context.Context, uri string, body []byte, candidateNextUpdate time.Time) error {
	now := c.clk.Now()
	nextUpdate := clamp(now, candidateNextUpdate)

	txn, err := c.dbMap.Begin()
	if err != nil {
		return verrors.NewCacheError("revocation cache: put crl: begin: %s", err)
	}

	_, err = txn.Exec("DELETE FROM crl_response WHERE dp_uri = ?", uri)
	if err != nil {
		_ = txn.Rollback()
		return verrors.NewCacheError("revocation cache: put crl: delete: %s", err)
	}

	err = txn.Insert(&crlRow{
		URI:        uri,
		Body:       base64.StdEncoding.EncodeToString(body),
		NextUpdate: nextUpdate.Unix(),
	})
	if err != nil {
		_ = txn.Rollback()
		return verrors.NewCacheError("revocation cache: put crl: insert: %s", err)
	}

	if err := txn.Commit(); err != nil {
		return verrors.NewCacheError("revocation cache: put crl: commit: %s", err)
	}
	return nil
}

// ListDueCRLs returns distribution-point URIs whose next_update is at or
// before now+shift, for background refresh.
func (c *Cache) ListDueCRLs(ctx context.Context, now time.Time, shift time.Duration) ([]string, error) {
	rows, err := c.dbMap.Select(&crlRow{},
		"SELECT dp_uri, body, next_update FROM crl_response WHERE next_update <= ?",
		now.Add(shift).Unix())
	if err != nil {
		return nil, verrors.NewCacheError("revocation cache: list due crls: %s", err)
	}
	uris := make([]string, 0, len(rows))
	for _, r := range rows {
		if row, ok := r.(*crlRow); ok {
			uris = append(uris, row.URI)
		}
	}
	return uris, nil
}

// Clear wipes all cache entries.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.dbMap.Exec("DELETE FROM ocsp_response"); err != nil {
		return verrors.NewCacheError("revocation cache: clear ocsp: %s", err)
	}
	if _, err := c.dbMap.Exec("DELETE FROM crl_response"); err != nil {
		return verrors.NewCacheError("revocation cache: clear crl: %s", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
