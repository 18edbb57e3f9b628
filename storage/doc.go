// Package storage persists uploads, parsed log events and detection findings
// in SQLite, with an optional ClickHouse archive for long-term event
// retention. SQLite runs in WAL mode behind separate read and write pools so
// queries keep flowing while an analysis run is inserting events.
package storage
