package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldYear        = "year"
	FieldGranularity = "granularity"
	FieldPeriod      = "period"
	FieldCategory    = "category"
	FieldRuleCount   = "rule_count"
	FieldTxnCount    = "transaction_count"
	FieldRelabeled   = "relabeled"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpList      = "list"
	OpClassify  = "classify"
	OpReconcile = "reconcile"
	OpExport    = "export"
	OpValidate  = "validate"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)
