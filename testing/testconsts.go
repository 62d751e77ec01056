package testing

// Logger Constants
// These constants define common logger configurations used across test files.
const (
	// TestLoggerLevelDebug is the debug log level used in most tests
	TestLoggerLevelDebug = "debug"
	// TestLoggerLevelError is the error log level for tests requiring minimal output
	TestLoggerLevelError = "error"
	// TestLoggerLevelDisabled completely disables logging in tests
	TestLoggerLevelDisabled = "disabled"
)

// Request Constants
// Common targets and credentials used by executor and transport tests.
const (
	TestServiceName = "test-service"
	TestURL         = "https://api.example.com/v1/items"
	TestToken       = "test-token"
	TestFreshToken  = "fresh-token"
)
