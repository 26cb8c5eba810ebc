package domain

import "errors"

var (
	ErrInvalidID = errors.New("invalid_purchase_id")
	ErrNotFound  = errors.New("purchase_not_found")
)
