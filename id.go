package stockledger

import "github.com/quayside/stockledger/id"

// ID is the identifier type for ledger-generated entities. SKU ids are
// caller-supplied strings and are not IDs.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// ReservationID is re-exported so callers of Release and Deduct don't
// have to import the id package.
type ReservationID = id.ReservationID

// AuditEntryID identifies one audit trail entry.
type AuditEntryID = id.AuditEntryID
