package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth & Identity errors
// 12000-12999: Matchmaking errors
// 13000-13999: Collaboration session errors
// 14000-14999: Question & Attempt errors
// 15000-15999: Execution & Verdict errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalError      ErrorCode = 10001
	InvalidParams      ErrorCode = 10002
	NotFound           ErrorCode = 10003
	Unauthorized       ErrorCode = 10004
	Forbidden          ErrorCode = 10005
	TooManyRequests    ErrorCode = 10006
	ServiceUnavailable ErrorCode = 10007
	Timeout            ErrorCode = 10008

	// Transport errors (10100-10199)
	TransportError  ErrorCode = 10100
	RequestFailed   ErrorCode = 10101
	ResponseInvalid ErrorCode = 10102

	// Validation errors (10200-10299)
	ValidationFailed ErrorCode = 10200
	InvalidFormat    ErrorCode = 10201
	ParseFailed      ErrorCode = 10202

	// ========== Auth & Identity Errors (11000-11999) ==========

	TokenMissing ErrorCode = 11000
	TokenInvalid ErrorCode = 11001
	TokenExpired ErrorCode = 11002

	// ========== Matchmaking Errors (12000-12999) ==========

	MatchRequestFailed ErrorCode = 12000
	MatchNotFound      ErrorCode = 12001
	MatchTimeout       ErrorCode = 12002
	MatchCancelled     ErrorCode = 12003
	ConfirmFailed      ErrorCode = 12004
	InvalidTransition  ErrorCode = 12005

	// ========== Collaboration Session Errors (13000-13999) ==========

	SessionNotFound ErrorCode = 13000
	ChannelClosed   ErrorCode = 13001
	ChannelNotReady ErrorCode = 13002
	ProtocolError   ErrorCode = 13003
	EnvelopeInvalid ErrorCode = 13004
	LineLockDenied  ErrorCode = 13005

	// ========== Question & Attempt Errors (14000-14999) ==========

	QuestionNotFound    ErrorCode = 14000
	TestCaseInvalid     ErrorCode = 14001
	AttemptCreateFailed ErrorCode = 14002

	// ========== Execution & Verdict Errors (15000-15999) ==========

	SandboxUnavailable   ErrorCode = 15000
	CompilationError     ErrorCode = 15001
	RuntimeError         ErrorCode = 15002
	LanguageNotSupported ErrorCode = 15003
	HarnessBuildFailed   ErrorCode = 15004
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:            "Success",
	InternalError:      "Internal error",
	InvalidParams:      "Invalid parameters",
	NotFound:           "Resource not found",
	Unauthorized:       "Unauthorized access",
	Forbidden:          "Access forbidden",
	TooManyRequests:    "Too many requests, please try again later",
	ServiceUnavailable: "Service temporarily unavailable",
	Timeout:            "Request timeout",

	// Transport
	TransportError:  "Transport failure",
	RequestFailed:   "Request failed",
	ResponseInvalid: "Invalid response payload",

	// Validation
	ValidationFailed: "Validation failed",
	InvalidFormat:    "Invalid format",
	ParseFailed:      "Failed to parse value",

	// Auth & Identity
	TokenMissing: "Access token is missing",
	TokenInvalid: "Invalid token",
	TokenExpired: "Token has expired",

	// Matchmaking
	MatchRequestFailed: "Failed to create match request",
	MatchNotFound:      "Match not found",
	MatchTimeout:       "No match found within the time limit",
	MatchCancelled:     "Match search cancelled",
	ConfirmFailed:      "Failed to confirm match",
	InvalidTransition:  "Invalid matchmaking state transition",

	// Collaboration Session
	SessionNotFound: "Session not found",
	ChannelClosed:   "Collaboration channel is closed",
	ChannelNotReady: "Collaboration channel is not ready",
	ProtocolError:   "Collaboration protocol error",
	EnvelopeInvalid: "Invalid message envelope",
	LineLockDenied:  "Line lock denied",

	// Question & Attempt
	QuestionNotFound:    "Question not found",
	TestCaseInvalid:     "Invalid test case format",
	AttemptCreateFailed: "Failed to record attempt",

	// Execution & Verdict
	SandboxUnavailable:   "Execution sandbox unavailable",
	CompilationError:     "Compilation error",
	RuntimeError:         "Runtime error",
	LanguageNotSupported: "Programming language not supported",
	HarnessBuildFailed:   "Failed to build test harness",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c >= 11000 && c < 12000:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == MatchNotFound, c == SessionNotFound, c == QuestionNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c == InvalidParams, c >= 10200 && c < 10300:
		return 400
	default:
		return 500
	}
}
