package types

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds the persistent CLI flags
type GlobalFlags struct {
	Profile      string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	Config       string
	LogFile      string
	JSON         bool
}

// CLIOutput is the envelope written for every command
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion"`
	TraceID       string       `json:"traceId,omitempty"`
	Command       string       `json:"command"`
	Data          interface{}  `json:"data"`
	Warnings      []CLIWarning `json:"warnings"`
	Errors        []CLIError   `json:"errors"`
}

// CLIWarning is a non-fatal condition reported alongside a result
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// CLIError is the stable, machine-readable error shape
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// RequestType classifies a call against the metadata service
type RequestType string

const (
	RequestTypeCreate   RequestType = "create"
	RequestTypeTransfer RequestType = "transfer"
	RequestTypeFinalize RequestType = "finalize"
)

// RequestContext carries per-call metadata used for logging and error context
type RequestContext struct {
	Path        string
	RequestType RequestType
	TraceID     string
}
