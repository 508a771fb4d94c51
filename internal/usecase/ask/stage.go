package ask

// Stage is one step of the per-request pipeline. Progression is strictly
// linear; a failed stage stops the pipeline, later stages never run.
type Stage string

const (
	StageReceived        Stage = "received"
	StageGeneratingQuery Stage = "generating_query"
	StageQueryGenerated  Stage = "query_generated"
	StageExecutingSearch Stage = "executing_search"
	StageSearchComplete  Stage = "search_complete"
	StageSummarizing     Stage = "summarizing"
	StageComplete        Stage = "complete"
)

// StageError attaches the failing pipeline stage to the underlying error kind.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
