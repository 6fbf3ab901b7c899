package domain

import "errors"

// Domain errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// MaxContractCodeLength bounds Contract.Code
const MaxContractCodeLength = 64
