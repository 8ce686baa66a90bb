package token

import "errors"

var (
	ErrRateLimited = errors.New("rate limited by API")
	ErrAuthFailed  = errors.New("authentication failed")
	ErrNoToken     = errors.New("no feed token configured")
)
