package importer

// RowError is one failed row in an import outcome.
// Index is 1-based over data rows, as shown to the user.
type RowError struct {
	Index   int    `json:"rowIndex"`
	Message string `json:"message"`
}

// Outcome is the final summary of one import run. Built fresh per run,
// never merged across runs. SuccessCount only ever increments and Errors
// is append-only while the run is in flight.
type Outcome struct {
	SuccessCount int        `json:"successCount"`
	Errors       []RowError `json:"errors"`
}

// FailedRow carries the raw cells of a failed row so the user can download,
// fix and re-import just the failures.
type FailedRow struct {
	Index   int
	Message string
	Data    []string
}

// Phase indicates the current stage of run processing.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseLoading   Phase = "loading"
	PhaseImporting Phase = "importing"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
)

// Progress is the current state of an import run.
type Progress struct {
	RunID     string `json:"runId"`
	FileName  string `json:"fileName"`
	Phase     Phase  `json:"phase"`
	TotalRows int    `json:"totalRows"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"` // non-empty if Phase is PhaseFailed
}

// Percent returns progress as 0-100. Monotonically non-decreasing for a run:
// Processed only grows and TotalRows is fixed before the first row.
func (p Progress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.TotalRows > 0 {
		return (p.Processed * 100) / p.TotalRows
	}
	return 0
}

// Result is the terminal state of a completed run. Immutable once set;
// a new import starts a new run.
type Result struct {
	RunID      string  `json:"runId"`
	FileName   string  `json:"fileName"`
	TotalRows  int     `json:"totalRows"`
	Outcome    Outcome `json:"outcome"`
	DurationMs int64   `json:"durationMs"`
	Error      string  `json:"error,omitempty"` // non-empty if the run never reached row processing

	// FailedRows backs the failed-row CSV export; not part of the JSON surface.
	FailedRows []FailedRow `json:"-"`
}
