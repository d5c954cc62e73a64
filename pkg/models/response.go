package models

// QueryRequest is the inbound generate-and-run request. SchemaContext, when
// present, skips retrieval entirely.
type QueryRequest struct {
	Question       string               `json:"question"`
	DatabaseID     string               `json:"database_id"`
	UserID         string               `json:"user_id,omitempty"`
	MaxRows        int                  `json:"max_rows,omitempty"`
	TimeoutSeconds int                  `json:"timeout_seconds,omitempty"`
	NCandidates    int                  `json:"n_candidates,omitempty"`
	Explain        bool                 `json:"explain,omitempty"`
	Trace          bool                 `json:"trace,omitempty"`
	SchemaContext  *SchemaContextPacket `json:"schema_context,omitempty"`
}

// ErrorInfo is the wire-level error shape returned at the RPC boundary.
type ErrorInfo struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// ColumnInfo describes one result-set column in order.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Trace carries per-stage timings and counters for one request.
type Trace struct {
	AttemptCount     int      `json:"attempt_count"`
	TablesSelected   []string `json:"tables_selected,omitempty"`
	IntentClassified string   `json:"intent_classified,omitempty"`
	PromptLength     int      `json:"prompt_length,omitempty"`
	PromptEvalCount  int      `json:"prompt_eval_count,omitempty"`
	EvalCount        int      `json:"eval_count,omitempty"`
	RetrievalMs      int64    `json:"retrieval_ms"`
	GenerationMs     int64    `json:"generation_ms"`
	ValidationMs     int64    `json:"validation_ms"`
	PlannerMs        int64    `json:"planner_ms"`
	ExecutionMs      int64    `json:"execution_ms"`
	TotalMs          int64    `json:"total_ms"`
}

// QueryResponse is the outcome of one pipeline run. On failure SQLGenerated
// holds the last SQL attempted, if any.
type QueryResponse struct {
	QueryID         string           `json:"query_id"`
	SQLGenerated    string           `json:"sql_generated,omitempty"`
	ConfidenceScore float64          `json:"confidence_score"`
	TablesSelected  []string         `json:"tables_selected,omitempty"`
	Intent          string           `json:"intent,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	Error           *ErrorInfo       `json:"error,omitempty"`
	Trace           *Trace           `json:"trace,omitempty"`
	Columns         []ColumnInfo     `json:"columns,omitempty"`
	Rows            []map[string]any `json:"rows,omitempty"`
}
