package domain

import "errors"

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidRate   = errors.New("invalid_tax_rate")
)
