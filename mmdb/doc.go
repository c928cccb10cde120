// Package mmdb reads MaxMind DB files: a binary search trie keyed by IP
// address bits, backed by a typed data section.
//
// Quick start:
//
//	r, err := mmdb.Open("GeoLite2-Country.mmdb", nil)
//	if err != nil { ... }
//	defer r.Close()
//	rec, ok, err := r.Lookup("1.2.3.4")
//	code, _ := rec.Path("country", "iso_code")
//
// A Reader is immutable after Open and safe for concurrent lookups.
package mmdb
