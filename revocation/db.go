package revocation

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/letsencrypt/borp"

	idb "github.com/wacapps/vcore/internal/db"
)

// OpenCacheDB opens a MySQL-backed revocation cache store, mirroring the
// teacher's sa.NewDbMap: a borp.DbMap over a pinged *sql.DB, with the two
// tables Cache reads and writes registered up front.
func OpenCacheDB(dsn string) (idb.DatabaseMap, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("revocation: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("revocation: ping db: %w", err)
	}

	dbMap := &borp.DbMap{Db: conn, Dialect: borp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8"}}
	dbMap.AddTableWithName(ocspRow{}, "ocsp_response").SetKeys(false, "ChainB64", "EndEntity")
	dbMap.AddTableWithName(crlRow{}, "crl_response").SetKeys(false, "URI")

	return idb.WrapDbMap(dbMap), nil
}
