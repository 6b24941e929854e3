package cerrors

import (
	"fmt"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric         ErrorType = "GENERIC_ERROR"
	ErrorTypeTargetControl   ErrorType = "TARGET_CONTROL_ERROR"
	ErrorTypeHealthChecks    ErrorType = "HEALTH_CHECKS_ERROR"
	ErrorTypeMetricQuery     ErrorType = "METRIC_QUERY_ERROR"
	ErrorTypeSpecValidation  ErrorType = "SPEC_VALIDATION_ERROR"
	ErrorTypeTimeout         ErrorType = "TIMEOUT"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present in an outcome detail
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

// Error is the typed error carried through scenario execution, its code decides
// whether a failure is reported as a resilience gap or a machinery gap
type Error struct {
	Source    string    `json:"source,omitempty"`
	ErrorCode ErrorType `json:"errorCode"`
	Phase     string    `json:"phase,omitempty"`
	Reason    string    `json:"reason"`
	Target    string    `json:"target,omitempty"`
}

func (e Error) Error() string {
	var out string
	if e.Phase != "" {
		out = fmt.Sprintf("[%s]: ", e.Phase)
	}
	if e.Target != "" {
		out = fmt.Sprintf("%starget: '%s', ", out, e.Target)
	}
	return fmt.Sprintf("%s%s", out, e.Reason)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}
