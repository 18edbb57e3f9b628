// Package ingest sniffs uploaded log content and parses it into loose rows
// ready for storage and detection. Parsers are pure functions over the raw
// upload; SmartParse picks the first format that plausibly matches.
package ingest
