package watch

// ExitStatus tells a supervising process how a watcher ended, without
// log parsing.
type ExitStatus int

const (
	// ExitStopped is an ordinary loop break: shutdown requested, or the
	// thread probe failed with a non-404 HTTP status.
	ExitStopped ExitStatus = iota

	// ExitGone means the thread was confirmed deleted (probe 404).
	// The supervisor disables the queue entry and never restarts it.
	ExitGone

	// ExitCrashed is a fatal failure: a transport-level probe error, a
	// filesystem error mid-download, or a recovered panic. The error is
	// attached to the Exit record.
	ExitCrashed
)

func (s ExitStatus) String() string {
	switch s {
	case ExitStopped:
		return "stopped"
	case ExitGone:
		return "gone"
	case ExitCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Exit is the structured termination record a watcher hands back.
type Exit struct {
	URL    string
	Status ExitStatus
	Err    error
}
