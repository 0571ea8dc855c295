// Package wal implements the durable write-ahead log of the key-value
// store.
//
// The log is a single UTF-8 text file holding one JSON object per line.
// Every Append assigns the next sequence number, writes the record and
// fsyncs it under one mutex, so sequence order and on-disk order always
// agree. Open restores the counter from the records already on disk, and
// Replay returns every decodable record in file order while skipping
// (and reporting) records that are torn or garbled.
//
// Records may optionally carry a CRC-32C checksum (WithChecksums); readers
// verify it whenever it is present.
package wal
