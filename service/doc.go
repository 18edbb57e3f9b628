// Package service orchestrates the analysis lifecycle of an upload: parse,
// store events, detect findings, group, summarize, and publish progress.
// Pipelines run on a bounded worker pool; HTTP handlers only queue work and
// read state. Assembled analysis documents are optionally cached in Redis
// until the next run invalidates them.
package service
