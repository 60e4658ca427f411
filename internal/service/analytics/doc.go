// Package analytics serves engagement reporting over stored email events.
//
// Events are loaded through the Repository interface and folded with the
// engagement package; nothing here caches derived state.
package analytics
