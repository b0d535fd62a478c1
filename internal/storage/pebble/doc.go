// Package pebblestore provides a thin wrapper around Pebble with a WAL sync
// policy and prefix iteration helpers.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    Dir:  "./data",
//	    Sync: pebblestore.SyncInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("j/1"), []byte("v"))
//	_ = db.ScanPrefix([]byte("j/"), false, func(k, v []byte) (bool, error) {
//	    return true, nil
//	})
package pebblestore
