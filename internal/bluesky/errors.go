package bluesky

import (
	"errors"
	"fmt"
	"net/http"
)

// XRPCError is an error response from the PDS.
type XRPCError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *XRPCError) Error() string {
	return fmt.Sprintf("xrpc error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsAuthRequired reports whether the error is an authentication failure,
// meaning stored credentials are bad and retrying will not help.
func IsAuthRequired(err error) bool {
	var xe *XRPCError
	if !errors.As(err, &xe) {
		return false
	}
	return xe.StatusCode == http.StatusUnauthorized || xe.Code == "AuthenticationRequired"
}

// IsRateLimited reports whether the PDS throttled the request.
func IsRateLimited(err error) bool {
	var xe *XRPCError
	if !errors.As(err, &xe) {
		return false
	}
	return xe.StatusCode == http.StatusTooManyRequests || xe.Code == "RateLimitExceeded"
}

// IsExpiredToken reports whether the access token has expired and a
// refresh should be attempted.
func IsExpiredToken(err error) bool {
	var xe *XRPCError
	if !errors.As(err, &xe) {
		return false
	}
	return xe.Code == "ExpiredToken"
}

// IsAccountDeactivated reports whether the destination account has been
// deactivated. Posting must stop for good when this comes back.
func IsAccountDeactivated(err error) bool {
	var xe *XRPCError
	if !errors.As(err, &xe) {
		return false
	}
	return xe.Code == "AccountDeactivated"
}

// IsRecordInvalid reports whether the PDS rejected the record as invalid.
// Such a post can never become postable and is dropped.
func IsRecordInvalid(err error) bool {
	var xe *XRPCError
	if !errors.As(err, &xe) {
		return false
	}
	return xe.StatusCode == http.StatusBadRequest && xe.Code == "InvalidRequest"
}
