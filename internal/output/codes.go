// Package output provides envelope formatting, structured errors, and exit codes.
package output

// Exit codes.
const (
	ExitOK          = 0 // Success
	ExitUsage       = 1 // Invalid arguments or flags
	ExitNotFound    = 2 // Upstream returned 404
	ExitClient      = 3 // Upstream rejected the request (other 4xx)
	ExitRateLimit   = 4 // Upstream returned 429
	ExitNetwork     = 5 // Connection/DNS error
	ExitTimeout     = 6 // Attempt exceeded the request timeout
	ExitAPI         = 7 // Upstream returned 5xx or an unusable body
	ExitUnavailable = 8 // Circuit open or no bulkhead slot
)

// Error codes for the JSON envelope.
const (
	CodeUsage       = "usage"
	CodeNotFound    = "not_found"
	CodeAuth        = "auth_required"
	CodeForbidden   = "forbidden"
	CodeClient      = "client_error"
	CodeRateLimit   = "rate_limit"
	CodeNetwork     = "network"
	CodeTimeout     = "timeout"
	CodeAPI         = "api_error"
	CodeCircuitOpen = "circuit_open"
	CodeBusy        = "busy"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeNotFound:
		return ExitNotFound
	case CodeAuth, CodeForbidden, CodeClient:
		return ExitClient
	case CodeRateLimit:
		return ExitRateLimit
	case CodeNetwork:
		return ExitNetwork
	case CodeTimeout:
		return ExitTimeout
	case CodeCircuitOpen, CodeBusy:
		return ExitUnavailable
	default:
		return ExitAPI
	}
}
