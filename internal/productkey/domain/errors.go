package domain

import "errors"

var (
	ErrNotFound          = errors.New("product_key_not_found")
	ErrAlreadyRedeemed   = errors.New("product_key_already_redeemed")
	ErrRevoked           = errors.New("product_key_revoked")
	ErrConsentRequired   = errors.New("consent_required")
	ErrInvalidSource     = errors.New("invalid_source_id")
	ErrInvalidKey        = errors.New("invalid_product_key")
	ErrKeySpaceExhausted = errors.New("product_key_generation_exhausted")
)
