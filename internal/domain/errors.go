package domain

import "fmt"

// EngineError is the unified error type for the editor and its host.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is matches any EngineError carrying the same code, so errors built with
// NewEngineError still satisfy errors.Is against the sentinels below.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Attempt workflow errors (-32010 to -32039) ----

var (
	ErrInvalidTransition = &EngineError{Code: -32010, Message: "invalid phase transition"}
	ErrPhaseGateFailed   = &EngineError{Code: -32011, Message: "phase gate evaluation failed"}
	ErrAttemptNotFound   = &EngineError{Code: -32012, Message: "attempt not found"}
	ErrAttemptDone       = &EngineError{Code: -32013, Message: "attempt already completed"}
	ErrOptimisticLock    = &EngineError{Code: -32015, Message: "optimistic lock conflict: state was modified concurrently"}
	ErrInvalidPhase      = &EngineError{Code: -32016, Message: "invalid phase value"}
	ErrGateNotRegistered = &EngineError{Code: -32017, Message: "no gate registered for phase"}
	ErrDuplicateAttempt  = &EngineError{Code: -32019, Message: "attempt already exists"}
)

// ---- Task source errors (-32070 to -32099) ----

var (
	ErrTaskNotFound   = &EngineError{Code: -32070, Message: "task not found"}
	ErrNoTasks        = &EngineError{Code: -32071, Message: "no tasks available"}
	ErrTaskInvalid    = &EngineError{Code: -32072, Message: "task file is invalid"}
	ErrNoTestInput    = &EngineError{Code: -32073, Message: "task has no test input"}
	ErrNoGroundTruth  = &EngineError{Code: -32074, Message: "task has no test output"}
	ErrSessionMissing = &EngineError{Code: -32075, Message: "editing session not found"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit       = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32132, Message: "store write failed"}
	ErrConfigInvalid   = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrDuplicateAction = &EngineError{Code: -32137, Message: "duplicate action sequence number"}
)

// ---- Grid editor errors (-32200 to -32229) ----

var (
	ErrInvalidGrid         = &EngineError{Code: -32200, Message: "invalid grid"}
	ErrInvalidDimensions   = &EngineError{Code: -32201, Message: "grid dimensions must be between 1 and 30"}
	ErrLimitExceeded       = &EngineError{Code: -32202, Message: "action limit reached"}
	ErrInvalidColor        = &EngineError{Code: -32203, Message: "color must be between 0 and 9"}
	ErrInvalidMode         = &EngineError{Code: -32204, Message: "unknown editor mode"}
	ErrCellOutOfRange      = &EngineError{Code: -32205, Message: "cell is outside the grid"}
	ErrSessionNotActive    = &EngineError{Code: -32206, Message: "editing session is not active"}
	ErrSessionClosed       = &EngineError{Code: -32207, Message: "editing session is closed"}
	ErrInvalidSessionState = &EngineError{Code: -32208, Message: "invalid session state transition"}
	ErrInvalidActionLog    = &EngineError{Code: -32209, Message: "action log cannot be replayed"}
	ErrInvalidSizeFormat   = &EngineError{Code: -32210, Message: `invalid size format, use e.g. "5x5" or "10x8"`}
)
