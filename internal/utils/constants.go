package utils

import "time"

// Agent defaults
const (
	DefaultServerURL     = "http://localhost:8000/v1"
	DefaultScanInterval  = 5 * time.Second
	DefaultWorkers       = 4
	DefaultIndexFileName = "index.db"
)

// Retry configuration
const (
	DefaultMaxRetries   = 2
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Schema version of the CLI output envelope
const SchemaVersion = "1.0"

// Keyring service name for stored bearer tokens
const KeyringService = "memora-agent"
