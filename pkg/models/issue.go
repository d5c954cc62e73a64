package models

// Severity classifies how a validation issue affects the pipeline.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Structural validator issue codes.
const (
	IssueMultipleStatements = "MULTIPLE_STATEMENTS"
	IssueNotReadOnly        = "NOT_READ_ONLY"
	IssueBannedKeyword      = "BANNED_KEYWORD"
	IssueBannedFunction     = "BANNED_FUNCTION"
	IssueUnknownTable       = "UNKNOWN_TABLE"
	IssueUnknownColumn      = "UNKNOWN_COLUMN"
	IssueLimitInjected      = "LIMIT_INJECTED"
	IssueSuspiciousLiteral  = "SUSPICIOUS_LITERAL"
)

// Semantic validator issue codes.
const (
	IssueMissingEntity      = "MISSING_ENTITY"
	IssueWrongSelect        = "WRONG_SELECT"
	IssueMissingAggregation = "MISSING_AGGREGATION"
	IssueHallucinatedValue  = "HALLUCINATED_VALUE"
	IssueWrongYear          = "WRONG_YEAR"
)

// Issue is one finding from a validator. Validators collect every issue
// for their stage before returning so a repair delta can encode all of
// them at once.
type Issue struct {
	Code       string            `json:"code"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HasErrors reports whether any issue in the list is severity error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity issues.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}
