package audithook

// Action constants for trail events.
const (
	// Stock actions
	ActionStockCreated   = "stock.created"
	ActionStockReserved  = "stock.reserved"
	ActionStockReleased  = "stock.released"
	ActionStockDeducted  = "stock.deducted"
	ActionStockAdjusted  = "stock.adjusted"
	ActionStockRestocked = "stock.restocked"

	// Reservation actions
	ActionReservationExpired = "reservation.expired"

	// Monitoring actions
	ActionLowStock           = "stock.low"
	ActionInvariantViolation = "invariant.violated"
	ActionSweepCompleted     = "sweep.completed"
)

// Resource constants for trail events.
const (
	ResourceStock       = "stock"
	ResourceReservation = "reservation"
	ResourceSweep       = "sweep"
)

// Category constants for trail events.
const (
	CategoryInventory   = "inventory"
	CategoryReservation = "reservation"
	CategoryIntegrity   = "integrity"
	CategoryMaintenance = "maintenance"
)

// Severity levels for trail events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for trail events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
