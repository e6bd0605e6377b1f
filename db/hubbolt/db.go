package hubbolt

import (
	"github.com/boltdb/bolt"

	"github.com/spilman/hub/hubcore"
)

// Bucket labels.  Channel updates live in a per-user nested bucket under
// chanUpdatesLabel; everything else is flat.
var (
	channelsLabel       = []byte(`channels`)
	chanUpdatesLabel    = []byte(`chanupdates`)
	threadsLabel        = []byte(`threadupdates`)
	openThreadsLabel    = []byte(`openthreads`)
	retiredThreadsLabel = []byte(`retiredthreads`)
	ratesLabel          = []byte(`rates`)
	optimisticLabel     = []byte(`optimistic`)
	custodialLabel      = []byte(`custodial`)

	hubbuckets = [][]byte{
		channelsLabel,
		chanUpdatesLabel,
		threadsLabel,
		openThreadsLabel,
		retiredThreadsLabel,
		ratesLabel,
		optimisticLabel,
		custodialLabel,
	}
)

// HubDB is the bolt-backed implementation of the hub's storage
// interfaces.  One file, one writer; bolt's write transactions give the
// engine its durability boundary.
type HubDB struct {
	db *bolt.DB
}

// compile-time checks that HubDB serves every store the engine needs
var (
	_ hubcore.ChannelStorage    = (*HubDB)(nil)
	_ hubcore.ThreadStorage     = (*HubDB)(nil)
	_ hubcore.RateStorage       = (*HubDB)(nil)
	_ hubcore.OptimisticStorage = (*HubDB)(nil)
	_ hubcore.CustodialStorage  = (*HubDB)(nil)
)

// OpenDB opens (creating if needed) the hub database file.
func OpenDB(dbPath string) (*HubDB, error) {
	var hdb HubDB
	var err error

	hdb.db, err = bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}

	// Ensure buckets exist that we need
	err = hdb.db.Update(func(tx *bolt.Tx) error {
		for _, n := range hubbuckets {
			_, err := tx.CreateBucketIfNotExists(n)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &hdb, nil
}

// CloseDB closes the underlying bolt file.
func (hdb *HubDB) CloseDB() error {
	return hdb.db.Close()
}
