package auth

// Recorder receives authentication events for metrics.
type Recorder interface {
	AuthAttempt(strategy string, reason FailureReason)
	SessionCreated()
	SessionDestroyed(reason string)
}

// Session destruction reasons
const (
	DestroyReasonLogout   = "logout"
	DestroyReasonOrphaned = "orphaned"
)

type nopRecorder struct{}

func (nopRecorder) AuthAttempt(string, FailureReason) {}
func (nopRecorder) SessionCreated()                   {}
func (nopRecorder) SessionDestroyed(string)           {}
