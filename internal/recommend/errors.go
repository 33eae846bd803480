package recommend

// ErrorClass is the failure taxonomy shared by the chain, the orchestrator and response meta.
type ErrorClass string

const (
	ErrConfig           ErrorClass = "CONFIG_ERROR"
	ErrUnauthorized     ErrorClass = "UNAUTHORIZED"
	ErrBadRequest       ErrorClass = "BAD_REQUEST"
	ErrRateLimited      ErrorClass = "RATE_LIMITED"
	ErrTimeout          ErrorClass = "TIMEOUT"
	ErrUpstream         ErrorClass = "UPSTREAM_ERROR"
	ErrParsing          ErrorClass = "PARSING_ERROR"
	ErrDeadlineExceeded ErrorClass = "DEADLINE_EXCEEDED"
	ErrToggleOff        ErrorClass = "TOGGLE_OFF"
	ErrNoEligibleNode   ErrorClass = "NO_ELIGIBLE_NODE"
)

// Terminal classes never retry and never escalate to a sibling node.
func (c ErrorClass) Terminal() bool {
	switch c {
	case ErrConfig, ErrUnauthorized, ErrBadRequest:
		return true
	default:
		return false
	}
}

// Retryable classes get bounded retries on the same node.
func (c ErrorClass) Retryable() bool {
	return c == ErrTimeout || c == ErrUpstream
}

func ParseErrorClass(s string) (ErrorClass, bool) {
	switch c := ErrorClass(s); c {
	case ErrConfig, ErrUnauthorized, ErrBadRequest, ErrRateLimited, ErrTimeout, ErrUpstream, ErrParsing, ErrDeadlineExceeded:
		return c, true
	default:
		return "", false
	}
}
