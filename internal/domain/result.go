package domain

// Result summarises a bulk operation. It is returned to the caller and never
// persisted.
type Result struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// Merge adds other's counts and errors to r.
func (r *Result) Merge(other Result) {
	r.Success += other.Success
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// Fail records n failed items with one error message.
func (r *Result) Fail(n int, msg string) {
	r.Failed += n
	r.Errors = append(r.Errors, msg)
}

// Total is the number of items accounted for.
func (r Result) Total() int {
	return r.Success + r.Failed
}

// Progress phases reported by bulk deletion.
const (
	PhaseIngest         = "ingest"
	PhaseSplitCleanup   = "split-cleanup"
	PhaseParentDeletion = "parent-deletion"
)

// Progress is emitted while a bulk operation runs.
type Progress struct {
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Phase      string `json:"phase,omitempty"`
}

// ProgressFunc receives progress events.
type ProgressFunc func(Progress)

// NewProgress computes the rounded-down percentage for completed of total.
func NewProgress(phase string, completed, total int) Progress {
	pct := 100
	if total > 0 {
		pct = completed * 100 / total
	}
	return Progress{Completed: completed, Total: total, Percentage: pct, Phase: phase}
}

// Emit calls fn if it is set.
func (fn ProgressFunc) Emit(p Progress) {
	if fn != nil {
		fn(p)
	}
}
