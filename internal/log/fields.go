package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldOperation      = "operation"
	FieldError          = "error"
	FieldDuration       = "duration_ms"
	FieldInstallationID = "installation_id"
	FieldEntityType     = "entity_type"
	FieldEntityID       = "entity_id"
	FieldTable          = "table"
	FieldPending        = "pending"
	FieldAttempt        = "attempt"
	FieldStatus         = "status"
	FieldGeneration     = "generation"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentDaemon  = "syncd"
	ComponentEngine  = "engine"
	ComponentQueue   = "queue"
	ComponentRemote  = "remote"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
)

// Operations defines standard operation names
const (
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpDrain      = "drain"
	OpFullSync   = "full_sync"
	OpHeartbeat  = "heartbeat"
	OpImport     = "import"
	OpExport     = "export"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithChange adds the fields identifying a queued change.
func (f LogFields) WithChange(entityType, id string) LogFields {
	f[FieldEntityType] = entityType
	f[FieldEntityID] = id
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
