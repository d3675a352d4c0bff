package auth

import "errors"

// FailureReason tags why authentication or identity resolution did not succeed.
type FailureReason string

const (
	ReasonIncorrectUsername      FailureReason = "incorrect_username"
	ReasonIncorrectPassword      FailureReason = "incorrect_password"
	ReasonExternalExchangeFailed FailureReason = "external_exchange_failed"
	ReasonStoreUnavailable       FailureReason = "store_unavailable"
	ReasonSessionExpired         FailureReason = "session_expired"
	ReasonNotFound               FailureReason = "not_found"
	ReasonRateLimited            FailureReason = "rate_limited"
)

// Failure is the error returned by strategies and the identity resolver.
// Match it with errors.Is against the sentinel of the same reason.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return string(f.Reason) + ": " + f.Err.Error()
	}
	return string(f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is reports whether target is a bare Failure with the same reason.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Err == nil && t.Reason == f.Reason
}

var (
	ErrIncorrectUsername      = &Failure{Reason: ReasonIncorrectUsername}
	ErrIncorrectPassword      = &Failure{Reason: ReasonIncorrectPassword}
	ErrExternalExchangeFailed = &Failure{Reason: ReasonExternalExchangeFailed}
	ErrStoreUnavailable       = &Failure{Reason: ReasonStoreUnavailable}
	ErrSessionExpired         = &Failure{Reason: ReasonSessionExpired}
	ErrNotFound               = &Failure{Reason: ReasonNotFound}
	ErrRateLimited            = &Failure{Reason: ReasonRateLimited}
)

func newFailure(reason FailureReason, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from err, or "" if err is not a Failure.
func ReasonOf(err error) FailureReason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
