// Package schedule manages campaign recurrence rules.
//
// The service validates editor input through the recurrence package, stores
// normalized rules through the Repository interface defined here, and
// previews upcoming fire times. Repository implementations live in
// repository/postgres/.
package schedule
