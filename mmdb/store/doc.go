// Package store provides the byte source and section layout for a MaxMind DB
// file. It is used internally by mmdb.Open and mmdb.OpenBytes.
//
// The file format consists of:
//   - Search tree: node_count nodes of two records each (24, 28 or 32 bits per record)
//   - Data section separator: 16 zero bytes
//   - Data section: self-describing typed values, linked by pointers
//   - Metadata marker "\xAB\xCD\xEFMaxMind.com" followed by the metadata map
package store
