// Package recurrence validates campaign send cadences and computes their
// fire instants.
//
// Validate turns the editor's loosely typed payload into a
// domain.RecurrenceRule whose Schedule variant carries only the fields its
// frequency uses. NextFireAfter, Upcoming and DueAt are pure functions over
// a rule and a reference instant; they never mutate LastFiredAt, which is
// stamped by the sweep worker after a fire is confirmed.
//
// Weekly, biweekly, daily and monthly schedules are evaluated on the wall
// clock of the rule's location. Custom schedules use standard 5-field cron
// semantics via github.com/robfig/cron/v3, in the rule's location or UTC.
package recurrence
