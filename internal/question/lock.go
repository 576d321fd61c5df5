package question

// LockState protects a questionnaire from structural edits once it has been
// seen or answered. It is derived on demand and never persisted.
type LockState int

const (
	Open LockState = iota
	LockedVisible
	LockedMarked
)

func (s LockState) String() string {
	switch s {
	case Open:
		return "open"
	case LockedVisible:
		return "locked_visible"
	case LockedMarked:
		return "locked_marked"
	}
	return "unknown"
}

func (s LockState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ComputeLockState: marked dominates visible.
func ComputeLockState(anyResponses, anyMarkingUserCanSee bool) LockState {
	switch {
	case anyResponses:
		return LockedMarked
	case anyMarkingUserCanSee:
		return LockedVisible
	default:
		return Open
	}
}
