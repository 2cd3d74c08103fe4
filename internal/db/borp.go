package db

import "github.com/letsencrypt/borp"

// WrapDbMap adapts a *borp.DbMap to DatabaseMap, the production backing
// store for the revocation cache.
func WrapDbMap(m *borp.DbMap) DatabaseMap {
	return borpMap{m}
}

type borpMap struct {
	*borp.DbMap
}

func (b borpMap) Begin() (Transaction, error) {
	txn, err := b.DbMap.Begin()
	if err != nil {
		return nil, err
	}
	return borpTxn{txn}, nil
}

type borpTxn struct {
	*borp.Transaction
}
