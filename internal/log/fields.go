package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldRuleID      = "rule_id"
	FieldAmountCents = "amount_cents"
	FieldDate        = "date"
	FieldAlertKind   = "alert_kind"
	FieldTrigger     = "trigger"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentWorker     = "worker"
	ComponentDispatcher = "dispatcher"
)

// Operations defines standard operation names
const (
	OpStartup  = "startup"
	OpShutdown = "shutdown"
	OpProject  = "project"
	OpDispatch = "dispatch"
)
