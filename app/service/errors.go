package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrSignatureInvalid     = errors.New("webhook signature verification failed")
	ErrUpstreamFetch        = errors.New("payment processor fetch failed")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
