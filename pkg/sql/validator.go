package sql

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// Validator enforces the single-statement read-only policy and the
// packet's table/column whitelist. The denylists ship as configuration so
// operators can align them with the deployed PostgreSQL version.
type Validator struct {
	BannedKeywords  []string
	BannedFunctions []string
}

// Result is the outcome of a structural validation pass. SQL carries the
// possibly rewritten statement (LIMIT auto-injection); Issues holds every
// finding for the stage in scan order.
type Result struct {
	SQL    string
	Issues []models.Issue
}

// Valid reports whether no error-severity issue was found.
func (r *Result) Valid() bool {
	return !models.HasErrors(r.Issues)
}

// Repairable reports whether every error issue is one the repair loop can
// address (unknown table/column). Policy violations are terminal.
func (r *Result) Repairable() bool {
	for _, issue := range r.Issues {
		if issue.Severity != models.SeverityError {
			continue
		}
		switch issue.Code {
		case models.IssueUnknownTable, models.IssueUnknownColumn:
		default:
			return false
		}
	}
	return true
}

// Validate checks sqlText against policy and the packet's allowed schema.
// maxRows is the LIMIT injected when the statement has none. All issues
// for the stage are collected; there is no early exit.
func (v *Validator) Validate(sqlText string, packet *models.SchemaContextPacket, maxRows int) *Result {
	res := &Result{SQL: strings.TrimSpace(sqlText)}
	if res.SQL == "" {
		res.Issues = append(res.Issues, models.Issue{
			Code:     models.IssueNotReadOnly,
			Severity: models.SeverityError,
			Message:  "empty statement",
		})
		return res
	}

	scan := Scan(res.SQL)
	words := codeWords(scan.Code)

	v.checkSingleStatement(scan, res)
	v.checkReadOnly(words, res)
	v.checkDenylist(words, res)
	v.checkTables(scan, packet, res)
	v.checkColumns(scan, packet, res)
	v.checkLiterals(scan, res)

	// Auto-fixes only make sense on a statement that passed policy.
	if res.Valid() {
		v.injectLimit(scan, maxRows, res)
	}
	return res
}

type word struct {
	text  string // uppercase
	pos   int
	depth int // paren nesting depth at the word
}

// codeWords splits the code stream into identifier/keyword words with
// their byte offsets and paren depth.
func codeWords(code string) []word {
	var words []word
	depth := 0
	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case isWordChar(c):
			start := i
			for i < len(code) && isWordChar(code[i]) {
				i++
			}
			words = append(words, word{text: strings.ToUpper(code[start:i]), pos: start, depth: depth})
		default:
			i++
		}
	}
	return words
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (v *Validator) checkSingleStatement(scan *ScanResult, res *Result) {
	trimmed := strings.TrimRight(scan.Code, " \t\n\r;")
	if strings.ContainsRune(trimmed, ';') {
		res.Issues = append(res.Issues, models.Issue{
			Code:     models.IssueMultipleStatements,
			Severity: models.SeverityError,
			Message:  "multiple SQL statements are not allowed; submit exactly one SELECT",
		})
	}
}

func (v *Validator) checkReadOnly(words []word, res *Result) {
	if len(words) == 0 {
		res.Issues = append(res.Issues, models.Issue{
			Code:     models.IssueNotReadOnly,
			Severity: models.SeverityError,
			Message:  "statement contains no SQL",
		})
		return
	}
	first := words[0].text
	if first != "SELECT" && first != "WITH" {
		res.Issues = append(res.Issues, models.Issue{
			Code:     models.IssueNotReadOnly,
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("only SELECT statements are allowed; statement begins with %s", first),
		})
	}
}

func (v *Validator) checkDenylist(words []word, res *Result) {
	banned := make(map[string]bool, len(v.BannedKeywords))
	for _, k := range v.BannedKeywords {
		banned[strings.ToUpper(k)] = true
	}
	fns := make(map[string]bool, len(v.BannedFunctions))
	for _, f := range v.BannedFunctions {
		fns[strings.ToUpper(f)] = true
	}

	for _, w := range words {
		if banned[w.text] {
			res.Issues = append(res.Issues, models.Issue{
				Code:     models.IssueBannedKeyword,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("keyword %s is not permitted in read-only queries", w.text),
			})
		}
		if fns[w.text] {
			res.Issues = append(res.Issues, models.Issue{
				Code:     models.IssueBannedFunction,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("function %s is not permitted", strings.ToLower(w.text)),
			})
		}
	}
}

// tableRef is one FROM/JOIN target with its optional alias.
type tableRef struct {
	name  string
	alias string
}

// extractTableRefs walks the code stream collecting FROM and JOIN targets.
// Parenthesized subqueries contribute no table name.
func extractTableRefs(code string) []tableRef {
	words := codeWords(code)
	var refs []tableRef
	for i := 0; i < len(words); i++ {
		w := words[i]
		if w.text != "FROM" && w.text != "JOIN" {
			continue
		}
		rest := strings.TrimLeft(code[w.pos+len(w.text):], " \t\n\r")
		if strings.HasPrefix(rest, "(") {
			continue
		}
		if i+1 >= len(words) {
			continue
		}
		name := words[i+1]
		if isReservedWord(name.text) {
			continue
		}
		ref := tableRef{name: strings.ToLower(name.text)}
		// Schema-qualified reference: the word after the dot is the table.
		aliasIdx := i + 2
		if i+2 < len(words) && dotAt(code, words[i+1], words[i+2]) {
			ref.name = strings.ToLower(words[i+2].text)
			aliasIdx = i + 3
			i++
		}
		// Optional [AS] alias.
		j := aliasIdx
		if j < len(words) && words[j].text == "AS" {
			j++
		}
		if j < len(words) && !isReservedWord(words[j].text) &&
			words[j].depth == name.depth &&
			!dotAt(code, words[j-1], words[j]) &&
			(j+1 >= len(words) || !dotAt(code, words[j], words[j+1])) {
			ref.alias = strings.ToLower(words[j].text)
		}
		refs = append(refs, ref)
	}
	return refs
}

// dotAt reports whether b immediately follows a '.' after a.
func dotAt(code string, a, b word) bool {
	if a.pos+len(a.text) > b.pos {
		return false
	}
	return strings.TrimSpace(code[a.pos+len(a.text):b.pos]) == "."
}

func isReservedWord(w string) bool {
	switch w {
	case "SELECT", "FROM", "WHERE", "JOIN", "INNER", "LEFT", "RIGHT", "FULL",
		"OUTER", "CROSS", "ON", "AS", "AND", "OR", "NOT", "GROUP", "ORDER",
		"BY", "HAVING", "LIMIT", "OFFSET", "UNION", "ALL", "DISTINCT",
		"WITH", "LATERAL", "USING", "NATURAL", "CASE", "WHEN", "THEN",
		"ELSE", "END", "ASC", "DESC", "NULLS", "FIRST", "LAST":
		return true
	}
	return false
}

func (v *Validator) checkTables(scan *ScanResult, packet *models.SchemaContextPacket, res *Result) {
	if packet == nil {
		return
	}
	ctes := cteNames(scan.Code)
	seen := make(map[string]bool)
	for _, ref := range extractTableRefs(scan.Code) {
		if ctes[ref.name] || seen[ref.name] {
			continue
		}
		seen[ref.name] = true
		if !packet.HasTable(ref.name) {
			res.Issues = append(res.Issues, models.Issue{
				Code:       models.IssueUnknownTable,
				Severity:   models.SeverityError,
				Message:    fmt.Sprintf("table %q is not in the retrieved schema", ref.name),
				Suggestion: "use only tables: " + strings.Join(packet.TableNames(), ", "),
				Metadata:   map[string]string{"table": ref.name},
			})
		}
	}
}

// cteNames collects WITH clause names so they are not mistaken for tables.
func cteNames(code string) map[string]bool {
	names := make(map[string]bool)
	words := codeWords(code)
	if len(words) == 0 || words[0].text != "WITH" {
		return names
	}
	j := 1
	if j < len(words) && words[j].text == "RECURSIVE" {
		j++
	}
	for j+1 < len(words) && words[j+1].text == "AS" {
		names[strings.ToLower(words[j].text)] = true
		depth := words[j].depth
		j += 2
		// Skip the parenthesized CTE body: consume words until we are back
		// at the CTE name's depth.
		for j < len(words) && words[j].depth > depth {
			j++
		}
	}
	return names
}

func (v *Validator) checkColumns(scan *ScanResult, packet *models.SchemaContextPacket, res *Result) {
	if packet == nil {
		return
	}
	aliases := make(map[string]string) // alias or table name -> table
	for _, ref := range extractTableRefs(scan.Code) {
		if ref.alias != "" {
			aliases[ref.alias] = ref.name
		}
		aliases[ref.name] = ref.name
	}

	words := codeWords(scan.Code)
	reported := make(map[string]bool)
	for i := 0; i+1 < len(words); i++ {
		if !dotAt(scan.Code, words[i], words[i+1]) {
			continue
		}
		qualifier := strings.ToLower(words[i].text)
		column := strings.ToLower(words[i+1].text)
		table, ok := aliases[qualifier]
		if !ok || packet.Table(table) == nil {
			continue // unknown alias, or the table is already flagged
		}
		if !packet.TableHasColumn(table, column) {
			key := table + "." + column
			if !reported[key] {
				reported[key] = true
				res.Issues = append(res.Issues, models.Issue{
					Code:     models.IssueUnknownColumn,
					Severity: models.SeverityError,
					Message:  fmt.Sprintf("column %q does not exist in table %q", column, table),
					Metadata: map[string]string{"table": table, "column": column},
				})
			}
		}
		i++ // consume the column word
	}
}

func (v *Validator) checkLiterals(scan *ScanResult, res *Result) {
	for _, lit := range scan.Literals() {
		if isSQLi, fingerprint := libinjection.IsSQLi(lit); isSQLi {
			res.Issues = append(res.Issues, models.Issue{
				Code:     models.IssueSuspiciousLiteral,
				Severity: models.SeverityWarning,
				Message:  fmt.Sprintf("string literal matches SQL injection fingerprint %s", string(fingerprint)),
				Metadata: map[string]string{"fingerprint": string(fingerprint)},
			})
		}
	}
}

// injectLimit appends LIMIT maxRows when the statement has no top-level
// LIMIT. An info issue records the auto-fix.
func (v *Validator) injectLimit(scan *ScanResult, maxRows int, res *Result) {
	if maxRows <= 0 {
		return
	}
	for _, w := range codeWords(scan.Code) {
		if w.text == "LIMIT" && w.depth == 0 {
			return
		}
	}
	sqlText := strings.TrimRight(res.SQL, " \t\n\r")
	hadSemicolon := strings.HasSuffix(sqlText, ";")
	sqlText = strings.TrimRight(strings.TrimSuffix(sqlText, ";"), " \t\n\r")
	sqlText = fmt.Sprintf("%s LIMIT %d", sqlText, maxRows)
	if hadSemicolon {
		sqlText += ";"
	}
	res.SQL = sqlText
	res.Issues = append(res.Issues, models.Issue{
		Code:     models.IssueLimitInjected,
		Severity: models.SeverityInfo,
		Message:  fmt.Sprintf("no LIMIT clause; injected LIMIT %d", maxRows),
	})
}
