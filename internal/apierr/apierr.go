package apierr

import "fmt"

// Stable machine-readable codes surfaced to clients so they can branch
// (e.g. offer a forced takeover on CONCURRENT_ROOM_SESSION).
const (
	CodeConcurrentRoomSession = "CONCURRENT_ROOM_SESSION"
	CodeRoomClosed            = "ROOM_CLOSED"
	CodeTrialLimitReached     = "TRIAL_LIMIT_REACHED"
	CodeNotYourTurn           = "NOT_YOUR_TURN"
	CodeNoFacilitator         = "NO_FACILITATOR"
	CodeQuotaExceeded         = "QUOTA_EXCEEDED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeValidation            = "VALIDATION"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Conflict(code string, err error) *Error {
	return &Error{Status: 409, Code: code, Err: err}
}

func Validation(err error) *Error {
	return &Error{Status: 400, Code: CodeValidation, Err: err}
}
