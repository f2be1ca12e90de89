package auth

// StateKind tags the variant held by a SessionState.
type StateKind int

const (
	StateUninitialized StateKind = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
	StateErrored
)

func (k StateKind) String() string {
	switch k {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// SessionState is the tagged session variant. Snapshot is set only for StateAuthenticated,
// Reason only for StateErrored. Error carries the last user-facing failure message and may
// accompany any variant.
type SessionState struct {
	Kind     StateKind
	Snapshot Snapshot
	Reason   string
	Error    string
}

// Uninitialized is the state before the first resolution attempt.
func Uninitialized() SessionState { return SessionState{Kind: StateUninitialized} }

// Loading marks an in-flight resolution or credential operation.
func Loading() SessionState { return SessionState{Kind: StateLoading} }

// Authenticated holds a resolved snapshot.
func Authenticated(s Snapshot) SessionState {
	return SessionState{Kind: StateAuthenticated, Snapshot: s}
}

// Anonymous is the signed-out state.
func Anonymous() SessionState { return SessionState{Kind: StateAnonymous} }

// Errored is the unrecoverable failure state.
func Errored(reason string) SessionState {
	return SessionState{Kind: StateErrored, Reason: reason, Error: reason}
}

// WithError returns a copy of the state carrying msg.
func (s SessionState) WithError(msg string) SessionState {
	s.Error = msg
	return s
}

// IsAuthenticated reports whether the state holds a snapshot.
func (s SessionState) IsAuthenticated() bool {
	return s.Kind == StateAuthenticated && !s.Snapshot.IsZero()
}

// SubjectID returns the snapshot subject when authenticated.
func (s SessionState) SubjectID() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Snapshot.SubjectID()
}
