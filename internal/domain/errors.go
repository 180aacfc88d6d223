package domain

import "errors"

var (
	ErrRowInvalid       = errors.New("row missing required field")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrDuplicateProfile = errors.New("duplicate profile")
	ErrFundUnknown      = errors.New("fund unknown")
	ErrSourceUnknown    = errors.New("payment source unknown")
	ErrBatchCreation    = errors.New("batch creation failed")
	ErrMethodInvalid    = errors.New("invalid payment method")
	ErrRequestFailed    = errors.New("remote request failed")
)
