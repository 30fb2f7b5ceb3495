// Package ir provides the declarative intermediate representation shared by
// every layer of the scheduler: designs (methods, transactions, relations),
// method data values, and recorded cycle traces.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Declaration order is significant and preserved everywhere (it is the
//     arbiter's tie-break order)
//   - Method data has no float types - use int64 for numbers
//   - All JSON tags use snake_case
//   - Cycles are numbered by a logical counter, never wall-clock time
package ir
