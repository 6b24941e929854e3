package comparator

import (
	"fmt"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
)

// CompareFloat compares floating numbers for specific operation
// it check for the >=, >, <=, <, ==, != operators
func (model Model) CompareFloat(errorCode cerrors.ErrorType) error {

	switch model.operator {
	case ">=":
		if !(model.a >= model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.source, Reason: fmt.Sprintf("observed value: %v is not greater than or equal to the threshold: %v", model.a, model.b)}
		}
	case "<=":
		if !(model.a <= model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.source, Reason: fmt.Sprintf("observed value: %v is not lesser than or equal to the threshold: %v", model.a, model.b)}
		}
	case ">":
		if !(model.a > model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.source, Reason: fmt.Sprintf("observed value: %v is not greater than the threshold: %v", model.a, model.b)}
		}
	case "<":
		if !(model.a < model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.source, Reason: fmt.Sprintf("observed value: %v is not lesser than the threshold: %v", model.a, model.b)}
		}
	case "==":
		if !(model.a == model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.source, Reason: fmt.Sprintf("observed value: %v is not equal to the threshold: %v", model.a, model.b)}
		}
	case "!=":
		if !(model.a != model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.source, Reason: fmt.Sprintf("observed value: %v should not match the threshold: %v", model.a, model.b)}
		}
	default:
		return cerrors.Error{ErrorCode: errorCode, Target: model.source, Reason: fmt.Sprintf("criteria '%s' not supported in the comparison", model.operator)}
	}
	return nil
}
