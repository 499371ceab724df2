package client

import "errors"

var (
	// ErrUnavailable covers transport failures and 5xx responses. Callers
	// never retry automatically.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnexpectedStatus is returned for status codes outside the contract.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)
