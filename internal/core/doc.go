// Package core holds the domain model shared by the importers, the billing
// lifecycle engine and the HTTP adapter.
//
// It contains no I/O. Everything here can be used by repositories, services,
// web handlers or tests without modification.
//
// # Aggregates
//
//   - [Campaign]: a bulk-imported dataset owned by one user and reviewed as a
//     whole unit. Its [CampaignStatus] is a single closed set covering both
//     ingestion states and review outcomes.
//   - [Invoice]: a billing document with line [Item]s. Its derived fields are
//     recomputed by [Normalize] on every validating write and its status is
//     moved to overdue by [ApplyOverdue] once the due date has passed.
//
// # Errors
//
// Failures are reported with the typed errors in errors.go ([DecodeError],
// [ValidationError], [NotFoundError], [ConflictError], [StorageError]).
// Technical errors are mapped to user-facing messages with [MapError]:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL007: Validation errors (formats, missing columns, statuses)
//   - FILE001-FILE006: File errors (size, encoding, format)
//   - UPL001-UPL005: Upload errors (cancelled, timeout, busy)
//   - RES001-RES002: Resource errors (not found, conflicting write)
package core
