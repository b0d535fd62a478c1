// Package keyspace discovers Bull queues by scanning Redis for their id
// counter keys (<prefix>:<name>:id). It holds no state between scans.
//
// Example:
//
//	s, _ := keyspace.NewScanner(rdb, keyspace.Options{Filter: `prefix == "bull"`})
//	ids, _ := s.Scan(ctx)
//	for _, id := range ids {
//	    fmt.Println(id.Key())
//	}
package keyspace
