package health

import "errors"

var (
	ErrAlertNotFound         = errors.New("alert not found")
	ErrUnknownRecoveryAction = errors.New("unknown recovery action")
)
