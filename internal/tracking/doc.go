// Package tracking turns engagement signals into email events.
//
// Signals arrive three ways: signed open/click/unsubscribe links served by
// Handler, provider webhooks posted to /webhooks/events, and an SQS queue
// drained by Consumer. Every path ends in an analytics.Sink.
package tracking
