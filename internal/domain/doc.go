// Package domain defines the core business types for campaign scheduling
// and engagement analytics.
//
// Types in this package are value objects with no database dependencies and
// no HTTP concerns. They are the shared language between the recurrence and
// engagement engines, the sweep worker, the repositories and the handlers.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Small pure helpers on the types are allowed (parsing, set membership)
//   - Constants and enums belong here
package domain
