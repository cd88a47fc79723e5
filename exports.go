package stockledger

import (
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Entity constructors
var (
	NewEntity   = types.NewEntity
	NewEntityAt = types.NewEntityAt
)

// Re-export id parsers for callers holding reservation ids as strings.
var (
	ParseReservationID = id.ParseReservationID
	ParseAuditEntryID  = id.ParseAuditEntryID
)
