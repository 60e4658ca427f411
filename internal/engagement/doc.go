// Package engagement collapses raw email lifecycle events into per-contact
// statuses, campaign and client metrics, and filtered timelines.
//
// Every function takes an immutable snapshot of events and recomputes from
// it; nothing is cached and nothing is mutated, so concurrent calls for the
// same or different campaigns need no locking.
package engagement
