package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// sqlstateHints maps repairable SQLSTATE codes to remediation guidance.
var sqlstateHints = map[string]string{
	"42P01": "The query references a table that does not exist. Use only the tables listed below.",
	"42703": "The query references a column that does not exist. Replace it with one of the candidate columns listed below.",
	"42601": "The query has a syntax error. Rewrite it as a single valid SELECT statement.",
	"42P10": "A GROUP BY or ORDER BY position is invalid. Reference select-list columns explicitly.",
	"42804": "A comparison mixes incompatible types. Cast explicitly or compare against a value of the column's type.",
	"42883": "The query calls a function that does not exist in PostgreSQL. Use standard functions only; compute decades with (year_column / 10) * 10.",
	"42501": "Permission denied. The query role is read-only.",
}

// SemanticDelta encodes semantic validator findings for one repair attempt.
func SemanticDelta(previousSQL string, issues []models.Issue) string {
	var b strings.Builder
	b.WriteString("## Previous Attempt Failed: Semantic Issues\n")
	writePreviousSQL(&b, previousSQL)
	b.WriteString("Problems:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- [%s] %s\n", issue.Code, issue.Message)
		if issue.Suggestion != "" {
			fmt.Fprintf(&b, "  Fix: %s\n", issue.Suggestion)
		}
	}
	b.WriteString("Rewrite the query so it addresses every problem above. Keep all literal values exactly as the question states them.")
	return b.String()
}

// StructuralDelta encodes structural validator findings. The allowed-table
// enumeration comes from the packet so the model cannot re-hallucinate.
func StructuralDelta(previousSQL string, issues []models.Issue, packet *models.SchemaContextPacket) string {
	var b strings.Builder
	b.WriteString("## Previous Attempt Failed: Invalid Table or Column References\n")
	writePreviousSQL(&b, previousSQL)
	b.WriteString("Problems:\n")

	unknownTable := false
	for _, issue := range issues {
		if issue.Severity != models.SeverityError {
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s\n", issue.Code, issue.Message)
		if issue.Code == models.IssueUnknownTable {
			unknownTable = true
		}
		if issue.Code == models.IssueUnknownColumn && packet != nil {
			if table := issue.Metadata["table"]; table != "" {
				writeColumnWhitelist(&b, packet, table)
			}
		}
	}
	if unknownTable && packet != nil {
		fmt.Fprintf(&b, "Allowed tables: %s\n", strings.Join(packet.TableNames(), ", "))
	}
	b.WriteString("Rewrite the query using only the tables and columns listed in the schema.")
	return b.String()
}

// PlannerDelta encodes an EXPLAIN failure. For 42703 it includes the
// candidate replacement columns and a minimal column whitelist: the
// referenced table's columns plus its single-FK-hop neighbors. For 42P01
// it enumerates the packet's allowed tables.
func PlannerDelta(previousSQL string, pgErr *models.PostgresError, packet *models.SchemaContextPacket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Previous Attempt Failed: Database Error %s\n", pgErr.SQLState)
	writePreviousSQL(&b, previousSQL)
	fmt.Fprintf(&b, "Error: %s\n", pgErr.Message)
	if pgErr.Hint != "" {
		fmt.Fprintf(&b, "Hint: %s\n", pgErr.Hint)
	}
	if hint, ok := sqlstateHints[pgErr.SQLState]; ok {
		fmt.Fprintf(&b, "%s\n", hint)
	}

	switch pgErr.SQLState {
	case "42703":
		if len(pgErr.Candidates) > 0 {
			b.WriteString("Candidate replacement columns:\n")
			for _, c := range pgErr.Candidates {
				fmt.Fprintf(&b, "- %s.%s (%s", c.Table, c.Column, c.DataType)
				if c.Gloss != "" {
					fmt.Fprintf(&b, ": %s", c.Gloss)
				}
				fmt.Fprintf(&b, ") [%s match, score %.2f]\n", c.MatchType, c.MatchScore)
			}
		}
		if packet != nil {
			for _, table := range whitelistTables(pgErr, packet) {
				writeColumnWhitelist(&b, packet, table)
			}
		}
	case "42P01":
		if packet != nil {
			fmt.Fprintf(&b, "Allowed tables: %s\n", strings.Join(packet.TableNames(), ", "))
		}
	}

	b.WriteString("Rewrite the query so it passes EXPLAIN.")
	return b.String()
}

// GenerationDelta encodes a failed or gibberish generation.
func GenerationDelta(previousSQL, reason string) string {
	var b strings.Builder
	b.WriteString("## Previous Attempt Failed: Invalid Output\n")
	if previousSQL != "" {
		writePreviousSQL(&b, previousSQL)
	}
	fmt.Fprintf(&b, "Problem: %s\n", reason)
	b.WriteString("Respond with exactly one valid PostgreSQL SELECT statement and nothing else.")
	return b.String()
}

// whitelistTables picks the tables whose columns the 42703 delta lists:
// the table the failing column resolved to (best candidate) plus its
// first-FK-hop neighbors.
func whitelistTables(pgErr *models.PostgresError, packet *models.SchemaContextPacket) []string {
	seen := make(map[string]bool)
	var tables []string
	add := func(name string) {
		lower := strings.ToLower(name)
		if name == "" || seen[lower] || packet.Table(name) == nil {
			return
		}
		seen[lower] = true
		tables = append(tables, name)
	}

	if len(pgErr.Candidates) > 0 {
		resolved := pgErr.Candidates[0].Table
		add(resolved)
		for _, n := range packet.FKNeighbors(resolved) {
			add(n)
		}
	} else {
		// No candidates resolved: fall back to every packet table.
		for _, name := range packet.TableNames() {
			add(name)
		}
	}
	if len(tables) > 1 {
		sort.Strings(tables[1:]) // keep the resolved table first
	}
	return tables
}

func writeColumnWhitelist(b *strings.Builder, packet *models.SchemaContextPacket, table string) {
	t := packet.Table(table)
	if t == nil {
		return
	}
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	fmt.Fprintf(b, "Columns of %s: %s\n", t.Name, strings.Join(names, ", "))
}

func writePreviousSQL(b *strings.Builder, sql string) {
	b.WriteString("Previous SQL:\n```sql\n")
	b.WriteString(strings.TrimSpace(sql))
	b.WriteString("\n```\n")
}
