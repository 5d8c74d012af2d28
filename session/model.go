package session

// Session is the authenticated credential pair plus account/host binding
// used for all cloud calls. SessionID and RefreshSessionID are an atomic
// pair: both present or both absent. APIHost never changes after creation
// except through a full account re-registration.
//
// Callers must treat a Session returned by a Store as an immutable
// snapshot; mutation goes through Store.Replace or Store.ApplyRotation.
type Session struct {
	SessionID        string
	RefreshSessionID string
	APIHost          string
	AccountUserID    string
	ValidSince       int64
}

// Clone returns an independent copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// Complete reports whether the token pair invariant holds and both tokens
// carry a value.
func (s *Session) Complete() bool {
	return s != nil && s.SessionID != "" && s.RefreshSessionID != ""
}
