package models

// Cause names the failure category that triggered a repair attempt.
type Cause string

const (
	CauseStructural Cause = "structural"
	CauseSemantic   Cause = "semantic"
	CausePlanner    Cause = "planner"
	CauseExecution  Cause = "execution"
	CauseGeneration Cause = "generation"
)

// RepairAttempt records one generation attempt. Attempts are append-only
// within a request; an attempt is never mutated once recorded, and
// confidences across a request are monotonically non-increasing.
type RepairAttempt struct {
	Index      int     `json:"index"`
	SQL        string  `json:"sql"`
	Confidence float64 `json:"confidence"`
	Cause      Cause   `json:"cause,omitempty"`
	Issues     []Issue `json:"issues,omitempty"`
	PriorSQL   string  `json:"prior_sql,omitempty"`
}

// PostgresError carries the planner/executor failure details used to build
// a repair delta.
type PostgresError struct {
	SQLState        string            `json:"sqlstate"`
	Message         string            `json:"message"`
	Hint            string            `json:"hint,omitempty"`
	UndefinedColumn string            `json:"undefined_column,omitempty"`
	UndefinedTable  string            `json:"undefined_table,omitempty"`
	Candidates      []ColumnCandidate `json:"candidates,omitempty"`
}

// ColumnCandidate is a replacement suggestion for an undefined column,
// computed from the schema-context packet.
type ColumnCandidate struct {
	Table      string  `json:"table"`
	Column     string  `json:"column"`
	DataType   string  `json:"data_type"`
	Gloss      string  `json:"gloss,omitempty"`
	MatchType  string  `json:"match_type"` // exact, prefix, suffix, fuzzy, inflection, embedding
	MatchScore float64 `json:"match_score"`
}
