package hubbolt

import (
	"encoding/json"

	"github.com/boltdb/bolt"

	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
)

// Record stores a rate snapshot keyed by retrieval time.
func (hdb *HubDB) Record(snap hubcore.ExchangeRateSnapshot) error {
	return hdb.db.Update(func(tx *bolt.Tx) error {
		v, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return tx.Bucket(ratesLabel).Put(hubutil.I64tB(snap.RetrievedAt.UnixNano()), v)
	})
}

// Latest returns the newest snapshot, nil if none was ever recorded.
func (hdb *HubDB) Latest() (*hubcore.ExchangeRateSnapshot, error) {
	var snap *hubcore.ExchangeRateSnapshot
	err := hdb.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(ratesLabel).Cursor().Last()
		if v == nil {
			return nil
		}
		var s hubcore.ExchangeRateSnapshot
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		snap = &s
		return nil
	})
	return snap, err
}
