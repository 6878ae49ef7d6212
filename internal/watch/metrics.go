package watch

// Metrics receives operational counters from watchers and the
// supervisor. The prometheus-backed implementation lives outside the
// domain package; NopMetrics serves tests and single-shot commands.
type Metrics interface {
	FileDownloaded()
	DuplicateSkipped()
	RateLimited()
	WatcherRestarted()
	WatcherCrashed()
	SetActiveWatchers(n int)
}

// NopMetrics discards all counter updates.
type NopMetrics struct{}

func NewNopMetrics() *NopMetrics { return &NopMetrics{} }

func (*NopMetrics) FileDownloaded()       {}
func (*NopMetrics) DuplicateSkipped()     {}
func (*NopMetrics) RateLimited()          {}
func (*NopMetrics) WatcherRestarted()     {}
func (*NopMetrics) WatcherCrashed()       {}
func (*NopMetrics) SetActiveWatchers(int) {}
