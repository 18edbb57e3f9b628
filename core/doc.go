// Package core holds the domain model shared across WarpTrace: the Upload
// lifecycle, parsed LogEvent records, detection Findings and the grouped
// anomaly/timeline types the API serves. It also carries two pieces of
// infrastructure the rest of the tree leans on, a Redis-backed cache for
// assembled analysis documents and a generic worker pool for background
// analyses.
//
// Conventions here apply module-wide: interfaces are declared next to the
// code that consumes them, constructors return concrete types, blocking
// operations take a context.Context first, and errors are wrapped rather
// than reformatted.
//
// Everything above this package (storage, engine, service, api) imports
// core; core itself reaches only for the cache client, the metrics
// registry and the standard library.
package core
