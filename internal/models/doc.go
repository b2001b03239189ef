// Package models defines the core domain models for Tally.
//
// # Aggregate shape
//
// Bill is the unit of collaboration: it owns its Members, Expenses (with
// their ExpenseItems) and SettledTransfer markers. Cross-references between
// entities (an expense's payer, an item's participants) are plain member ID
// strings, never pointers, so the aggregate has no cyclic ownership and can
// be loaded, mutated and persisted as one value.
//
// # Identifier duality
//
// Every mutable entity carries two identifiers while a client is offline: a
// client-generated local ID (stable inside that client's store) and a
// server-assigned remote ID (the entity's ID field, permanent once minted).
// The LocalID that created an entity is retained so a retried sync can be
// correlated back to the same row instead of minting a duplicate.
//
// # Soft deletes
//
// Entities are tombstoned via the Deleted flag, never physically removed.
// Tombstoned entities are excluded from read projections and from balance
// computation but stay resolvable as reference targets: a departed member's
// historical expenses remain intact.
//
// # Versioning
//
// Bill.Version increases by exactly one per committed mutation. A sync that
// changes nothing must not bump it; clients use the version as the base for
// their next delta.
package models
