package sql

import (
	"strings"
	"testing"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

func testValidator() *Validator {
	return &Validator{
		BannedKeywords: []string{
			"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER",
			"CREATE", "GRANT", "REVOKE", "COPY", "VACUUM", "EXECUTE",
		},
		BannedFunctions: []string{"pg_sleep", "pg_read_file", "dblink", "lo_import"},
	}
}

func testPacket() *models.SchemaContextPacket {
	return &models.SchemaContextPacket{
		DatabaseID: "public",
		Tables: []models.TableContext{
			{
				Name: "companies",
				Columns: []models.ColumnEntry{
					{Table: "companies", Name: "id", DataType: "uuid", IsPrimaryKey: true},
					{Table: "companies", Name: "name", DataType: "text"},
					{Table: "companies", Name: "state", DataType: "text"},
				},
			},
			{
				Name: "filings",
				Columns: []models.ColumnEntry{
					{Table: "filings", Name: "id", DataType: "uuid", IsPrimaryKey: true},
					{Table: "filings", Name: "company_id", DataType: "uuid", IsForeignKey: true, FKTargetTable: "companies", FKTargetColumn: "id"},
					{Table: "filings", Name: "filed_at", DataType: "timestamptz"},
				},
			},
		},
	}
}

func issueCodes(issues []models.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func hasCode(issues []models.Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_AcceptsSelect(t *testing.T) {
	v := testValidator()
	res := v.Validate("SELECT name FROM companies LIMIT 10", testPacket(), 100)
	if !res.Valid() {
		t.Fatalf("expected valid, got issues: %v", issueCodes(res.Issues))
	}
}

func TestValidate_RejectedStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		code string
	}{
		{"empty", "", models.IssueNotReadOnly},
		{"update", "UPDATE companies SET name = 'x'", models.IssueNotReadOnly},
		{"delete", "DELETE FROM companies", models.IssueNotReadOnly},
		{"multiple statements", "SELECT 1; SELECT 2", models.IssueMultipleStatements},
		{"stacked write", "SELECT 1; DROP TABLE companies", models.IssueMultipleStatements},
		{"banned keyword inside select", "SELECT * FROM companies WHERE id IN (DELETE FROM filings RETURNING id)", models.IssueBannedKeyword},
		{"banned function", "SELECT pg_sleep(10)", models.IssueBannedFunction},
		{"unknown table", "SELECT * FROM employees", models.IssueUnknownTable},
		{"unknown qualified column", "SELECT c.revenue FROM companies c", models.IssueUnknownColumn},
	}

	v := testValidator()
	packet := testPacket()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.sql, packet, 100)
			if res.Valid() {
				t.Fatalf("expected invalid")
			}
			if !hasCode(res.Issues, tt.code) {
				t.Errorf("expected issue %s, got %v", tt.code, issueCodes(res.Issues))
			}
		})
	}
}

func TestValidate_SemicolonInLiteralIsSingleStatement(t *testing.T) {
	v := testValidator()
	res := v.Validate("SELECT * FROM companies WHERE name = 'a;b'", testPacket(), 100)
	if hasCode(res.Issues, models.IssueMultipleStatements) {
		t.Errorf("semicolon inside literal flagged as multiple statements")
	}
}

func TestValidate_KeywordInLiteralNotBanned(t *testing.T) {
	v := testValidator()
	res := v.Validate("SELECT * FROM companies WHERE name = 'DROP Industries'", testPacket(), 100)
	if hasCode(res.Issues, models.IssueBannedKeyword) {
		t.Errorf("keyword inside string literal flagged: %v", issueCodes(res.Issues))
	}
}

func TestValidate_CTENamesAreNotTables(t *testing.T) {
	v := testValidator()
	sql := "WITH recent AS (SELECT * FROM filings WHERE filed_at > NOW() - INTERVAL '1 year') SELECT * FROM recent"
	res := v.Validate(sql, testPacket(), 100)
	if hasCode(res.Issues, models.IssueUnknownTable) {
		t.Errorf("CTE name flagged as unknown table: %v", issueCodes(res.Issues))
	}
}

func TestValidate_AliasedColumns(t *testing.T) {
	v := testValidator()
	sql := "SELECT c.name, f.filed_at FROM companies c JOIN filings f ON f.company_id = c.id"
	res := v.Validate(sql, testPacket(), 100)
	if !res.Valid() {
		t.Fatalf("expected valid, got %v", issueCodes(res.Issues))
	}
}

func TestValidate_SchemaQualifiedTable(t *testing.T) {
	v := testValidator()
	res := v.Validate("SELECT * FROM public.companies", testPacket(), 100)
	if hasCode(res.Issues, models.IssueUnknownTable) {
		t.Errorf("schema-qualified known table flagged: %v", issueCodes(res.Issues))
	}
}

func TestValidate_LimitInjection(t *testing.T) {
	v := testValidator()
	packet := testPacket()

	res := v.Validate("SELECT name FROM companies", packet, 50)
	if !strings.Contains(res.SQL, "LIMIT 50") {
		t.Errorf("LIMIT not injected: %q", res.SQL)
	}
	if !hasCode(res.Issues, models.IssueLimitInjected) {
		t.Errorf("missing LIMIT_INJECTED info issue: %v", issueCodes(res.Issues))
	}

	// Existing top-level LIMIT is preserved.
	res = v.Validate("SELECT name FROM companies LIMIT 5", packet, 50)
	if strings.Contains(res.SQL, "LIMIT 50") {
		t.Errorf("existing LIMIT overridden: %q", res.SQL)
	}

	// LIMIT inside a subquery does not count.
	res = v.Validate("SELECT * FROM companies WHERE id IN (SELECT company_id FROM filings LIMIT 3)", packet, 50)
	if !strings.Contains(res.SQL, "LIMIT 50") {
		t.Errorf("nested LIMIT suppressed injection: %q", res.SQL)
	}

	// Semicolon placement: LIMIT goes before the terminator.
	res = v.Validate("SELECT name FROM companies;", packet, 50)
	if !strings.HasSuffix(res.SQL, "LIMIT 50;") {
		t.Errorf("LIMIT after semicolon: %q", res.SQL)
	}
}

func TestValidate_NoInjectionOnInvalidStatement(t *testing.T) {
	v := testValidator()
	res := v.Validate("DELETE FROM companies", testPacket(), 50)
	if strings.Contains(res.SQL, "LIMIT") {
		t.Errorf("LIMIT injected into rejected statement: %q", res.SQL)
	}
}

func TestValidate_NilPacketSkipsSchemaChecks(t *testing.T) {
	v := testValidator()
	res := v.Validate("SELECT * FROM anything LIMIT 1", nil, 100)
	if !res.Valid() {
		t.Errorf("nil packet should skip table checks, got %v", issueCodes(res.Issues))
	}
}

func TestResult_Repairable(t *testing.T) {
	repairable := &Result{Issues: []models.Issue{
		{Code: models.IssueUnknownTable, Severity: models.SeverityError},
		{Code: models.IssueLimitInjected, Severity: models.SeverityInfo},
	}}
	if !repairable.Repairable() {
		t.Errorf("unknown-table-only result should be repairable")
	}

	terminal := &Result{Issues: []models.Issue{
		{Code: models.IssueBannedKeyword, Severity: models.SeverityError},
	}}
	if terminal.Repairable() {
		t.Errorf("policy violation should not be repairable")
	}
}

func TestExtractTableRefs(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []tableRef
	}{
		{
			name: "bare table",
			sql:  "SELECT * FROM users",
			want: []tableRef{{name: "users"}},
		},
		{
			name: "alias without AS",
			sql:  "SELECT * FROM users u",
			want: []tableRef{{name: "users", alias: "u"}},
		},
		{
			name: "alias with AS",
			sql:  "SELECT * FROM users AS u",
			want: []tableRef{{name: "users", alias: "u"}},
		},
		{
			name: "join",
			sql:  "SELECT * FROM users u JOIN orders o ON o.user_id = u.id",
			want: []tableRef{{name: "users", alias: "u"}, {name: "orders", alias: "o"}},
		},
		{
			name: "schema qualified",
			sql:  "SELECT * FROM public.users u",
			want: []tableRef{{name: "users", alias: "u"}},
		},
		{
			name: "subquery contributes nothing",
			sql:  "SELECT * FROM (SELECT 1) x",
			want: nil,
		},
		{
			name: "where clause does not produce alias",
			sql:  "SELECT * FROM users WHERE id = 1",
			want: []tableRef{{name: "users"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTableRefs(tt.sql)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ref %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCTENames(t *testing.T) {
	names := cteNames("WITH a AS (SELECT 1), b AS (SELECT 2) SELECT * FROM a JOIN b ON true")
	if !names["a"] || !names["b"] {
		t.Errorf("expected a and b, got %v", names)
	}
	if len(cteNames("SELECT 1")) != 0 {
		t.Errorf("non-WITH statement produced CTE names")
	}
	rec := cteNames("WITH RECURSIVE tree AS (SELECT 1) SELECT * FROM tree")
	if !rec["tree"] {
		t.Errorf("RECURSIVE CTE name missed: %v", rec)
	}
}
