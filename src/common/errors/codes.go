package errors

import "net/http"

// Common error codes used across domains
const (
	CodeNotFound       Code = "not_found"
	CodeInvalidRequest Code = "invalid_request"
	CodeUnauthorized   Code = "unauthorized"
	CodeConflict       Code = "conflict"
	CodeInternal       Code = "internal_error"
	CodeUnavailable    Code = "unavailable"
)

// ============================================================================
// Configuration Errors
// ============================================================================

var (
	// ErrBuildTreeMissing is returned when the build/conf directory does not exist
	ErrBuildTreeMissing = New(DomainConfig, "build_tree_missing", http.StatusPreconditionFailed,
		"Build directory not initialized")

	// ErrConfigNotFound is returned when a primary configuration file is absent
	ErrConfigNotFound = New(DomainConfig, CodeNotFound, http.StatusNotFound,
		"Configuration file not found")

	// ErrConfigRead is returned when a configuration file cannot be read
	ErrConfigRead = New(DomainConfig, "read_failed", http.StatusInternalServerError,
		"Failed to read configuration file")

	// ErrConfigWrite is returned when a configuration file cannot be written
	ErrConfigWrite = New(DomainConfig, "write_failed", http.StatusInternalServerError,
		"Failed to write configuration file")

	// ErrInvalidSetting is returned when a session setting is unknown or malformed
	ErrInvalidSetting = New(DomainConfig, "invalid_setting", http.StatusBadRequest,
		"Invalid setting")

	// ErrPokyPathUnset is returned when no poky directory is configured
	ErrPokyPathUnset = New(DomainConfig, "poky_path_unset", http.StatusPreconditionFailed,
		"Poky path not set")
)

// ============================================================================
// Dependency Errors
// ============================================================================

var (
	// ErrLayerFetch is returned when one or more layers could not be cloned
	ErrLayerFetch = New(DomainDependency, "layer_fetch_failed", http.StatusBadGateway,
		"Failed to fetch required layers")
)

// ============================================================================
// Operation Errors
// ============================================================================

var (
	// ErrCommandFailed is returned when an external command exits unsuccessfully
	ErrCommandFailed = New(DomainOperation, "command_failed", http.StatusInternalServerError,
		"External command failed")

	// ErrBusy is returned by the API when an operation of the same class is running
	ErrBusy = New(DomainOperation, "busy", http.StatusConflict,
		"Operation already in progress")

	// ErrOperationNotFound is returned when an operation record cannot be found
	ErrOperationNotFound = New(DomainOperation, CodeNotFound, http.StatusNotFound,
		"Operation not found")
)

// ============================================================================
// Precondition Errors
// ============================================================================

var (
	// ErrNoDevice is returned when flashing is attempted without a target device
	ErrNoDevice = New(DomainPrecondition, "no_device", http.StatusBadRequest,
		"No target device selected")

	// ErrImageNotFound is returned when no built image could be located
	ErrImageNotFound = New(DomainPrecondition, "image_not_found", http.StatusNotFound,
		"Image file not found")

	// ErrBundleNotFound is returned when no update bundle could be located
	ErrBundleNotFound = New(DomainPrecondition, "bundle_not_found", http.StatusNotFound,
		"Update bundle not found")

	// ErrToolMissing is returned when a required external tool is not installed
	ErrToolMissing = New(DomainPrecondition, "tool_missing", http.StatusFailedDependency,
		"Required tool not installed")

	// ErrDestinationExists is returned when a clone destination already exists
	ErrDestinationExists = New(DomainPrecondition, "destination_exists", http.StatusConflict,
		"Destination already exists")
)

// ============================================================================
// Storage Errors
// ============================================================================

var (
	// ErrStorageUpload is returned when an artifact upload fails
	ErrStorageUpload = New(DomainStorage, "upload_failed", http.StatusInternalServerError,
		"Failed to upload artifact")

	// ErrStorageUnavailable is returned when the storage backend is not reachable
	ErrStorageUnavailable = New(DomainStorage, CodeUnavailable, http.StatusServiceUnavailable,
		"Storage backend unavailable")
)

// ============================================================================
// Database Errors
// ============================================================================

var (
	// ErrDatabaseQuery is returned when a database query fails
	ErrDatabaseQuery = New(DomainDatabase, "query_failed", http.StatusInternalServerError,
		"Database query failed")
)

// ============================================================================
// Auth Errors
// ============================================================================

var (
	// ErrNoToken is returned when no bearer token is provided
	ErrNoToken = New(DomainAuth, "no_token", http.StatusUnauthorized,
		"No authentication token provided")

	// ErrTokenInvalid is returned when a token is malformed, expired or badly signed
	ErrTokenInvalid = New(DomainAuth, "token_invalid", http.StatusUnauthorized,
		"Invalid token")
)

// ============================================================================
// Generic Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned when a request body cannot be parsed
	ErrInvalidRequest = New(DomainValidation, CodeInvalidRequest, http.StatusBadRequest,
		"Invalid request")

	// ErrInternal is returned for unexpected internal errors
	ErrInternal = New(DomainInternal, CodeInternal, http.StatusInternalServerError,
		"Internal error")
)
