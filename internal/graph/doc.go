// Package graph builds the static conflict graph the arbiter consults every
// cycle.
//
// Construction is two-phase. A Builder accumulates methods, transactions,
// call edges and relations in declaration order; Finalize resolves names,
// runs the call-closure pass, infers conflicts, checks priority chains for
// cycles, and freezes the result into an immutable ConflictGraph. Any
// registration after Finalize fails with LateRegistrationError.
//
// # Conflict inference
//
// Every node gets a stable integer index (arena + index). The closure pass
// computes, for each transaction, the set of methods reachable through its
// call edges, including methods called by methods. Two transactions are
// exclusive when:
//
//   - their closures share a method (a method serves one caller per cycle)
//   - an Exclusive relation names them, or methods in their closures
//   - a Priority relation orders them, or methods in their closures
//
// Priority relations are lifted the same way: Priority(x > y) orders every
// transaction that is x or reaches x over every transaction that is y or
// reaches y.
//
// # Canonical order
//
// The canonical order is the lexicographically smallest topological order of
// the lifted priority digraph with respect to declaration index. The arbiter
// walks transactions in this order; for exclusive pairs with no priority
// path between them the one earlier in the canonical order wins. With no
// priority edges involved this is plain declaration order.
//
// A ConflictGraph is read-only and safe for concurrent use.
package graph
