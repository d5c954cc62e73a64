// Package prompts assembles LLM prompts for SQL generation. Every builder
// is a pure function of its inputs: the base prompt is byte-identical for
// identical (packet, question) pairs, and repair prompts are the base plus
// concatenated delta blocks.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// JoinHintFormat selects how FK information is rendered in the base prompt.
type JoinHintFormat string

const (
	JoinHintEdges JoinHintFormat = "edges"
	JoinHintPaths JoinHintFormat = "paths"
	JoinHintBoth  JoinHintFormat = "both"
	JoinHintNone  JoinHintFormat = "none"
)

const (
	maxJoinHintEdges = 15
	maxJoinPaths     = 3

	// CandidateDelimiter separates statements in multi-candidate output.
	CandidateDelimiter = "---SQL_CANDIDATE---"
)

var columnRules = []string{
	"Use ONLY columns that appear in the schema above. Never guess column names.",
	"If a column is not listed for a table, it does not exist.",
	"Use the [FK->table.column] annotations to join tables.",
	"Prefer status/type enum columns over inventing boolean columns.",
	"Count rows via COUNT(*) or a primary key column, not arbitrary columns.",
	"Qualify column names with table aliases whenever the query joins tables.",
}

var postgresRules = []string{
	"Write PostgreSQL syntax.",
	"Give every table a short alias and use it consistently.",
	"Use explicit JOIN ... ON syntax, never comma joins.",
	"String literals use single quotes; identifiers are unquoted lowercase.",
	"Every non-aggregated SELECT column must appear in GROUP BY.",
	"Emit exactly one statement and nothing after it.",
	"Date arithmetic uses INTERVAL, e.g. NOW() - INTERVAL '1 year'.",
	"Group by month or quarter with date_trunc, e.g. date_trunc('month', col).",
	"\"by X\" in a question means GROUP BY X.",
	"Growth rates are ratio arithmetic: (later - earlier) / NULLIF(earlier, 0).",
	"Compute decades with integer arithmetic: (year_column / 10) * 10, not EXTRACT.",
}

// Base builds the immutable base prompt for a packet and question. It is
// never mutated across repair attempts.
func Base(packet *models.SchemaContextPacket, question string, format JoinHintFormat) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a PostgreSQL SELECT query for the %s database.\n\n", packet.DatabaseID)

	b.WriteString("Schema annotations: [PK] primary key, [FK->table.col] foreign key.\n\n")

	writeSchemaBlocks(&b, packet)
	writeJoinHints(&b, packet, format)
	writeRules(&b, "## Column Selection Rules", columnRules)
	writeRules(&b, "## PostgreSQL Rules", postgresRules)

	b.WriteString("## Question\n")
	b.WriteString(question)
	b.WriteString("\n\n## SQL Query\n")

	return b.String()
}

// MultiCandidate wraps the base prompt with instructions to emit k
// statements separated by the candidate delimiter line.
func MultiCandidate(base string, k int) string {
	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\nWrite %d different SQL queries that each answer the question. ", k)
	fmt.Fprintf(&b, "Separate them with a line containing exactly:\n%s\n", CandidateDelimiter)
	return b.String()
}

// Repair composes the prompt for a repair attempt: the unchanged base plus
// the delta blocks for this attempt only, joined by blank lines.
func Repair(base string, deltas []string) string {
	if len(deltas) == 0 {
		return base
	}
	return base + "\n\n" + strings.Join(deltas, "\n\n")
}

// writeSchemaBlocks renders per-module grouped M-schema blocks, tables
// sorted by (module, name) for deterministic output.
func writeSchemaBlocks(b *strings.Builder, packet *models.SchemaContextPacket) {
	tables := make([]models.TableContext, len(packet.Tables))
	copy(tables, packet.Tables)
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Module != tables[j].Module {
			return tables[i].Module < tables[j].Module
		}
		return tables[i].Name < tables[j].Name
	})

	b.WriteString("## Schema\n\n")
	currentModule := "\x00"
	for _, t := range tables {
		if t.Module != currentModule {
			if currentModule != "\x00" {
				b.WriteString("```\n\n")
			}
			fmt.Fprintf(b, "### %s\n```\n", moduleHeader(t.Module))
			currentModule = t.Module
		}
		if t.Gloss != "" {
			fmt.Fprintf(b, "-- %s\n", t.Gloss)
		}
		mschema := t.MSchema
		if mschema == "" {
			mschema = t.RenderMSchema()
		}
		b.WriteString(mschema)
		b.WriteByte('\n')
	}
	if currentModule != "\x00" {
		b.WriteString("```\n\n")
	}
}

func moduleHeader(module string) string {
	if module == "" {
		return "general"
	}
	return module
}

func writeJoinHints(b *strings.Builder, packet *models.SchemaContextPacket, format JoinHintFormat) {
	showEdges := format == JoinHintEdges || format == JoinHintBoth
	showPaths := format == JoinHintPaths || format == JoinHintBoth

	if showEdges && len(packet.JoinHints) > 0 {
		b.WriteString("## Join Hints\n")
		hints := packet.JoinHints
		if len(hints) > maxJoinHintEdges {
			hints = hints[:maxJoinHintEdges]
		}
		for _, h := range hints {
			fmt.Fprintf(b, "- %s\n", h)
		}
		b.WriteByte('\n')
	}

	if showPaths && len(packet.JoinPaths) > 0 {
		b.WriteString("## Suggested Join Paths\n")
		paths := packet.JoinPaths
		if len(paths) > maxJoinPaths {
			paths = paths[:maxJoinPaths]
		}
		for _, p := range paths {
			fmt.Fprintf(b, "- %s\n", p)
		}
		b.WriteByte('\n')
	}
}

func writeRules(b *strings.Builder, header string, rules []string) {
	b.WriteString(header)
	b.WriteByte('\n')
	for i, r := range rules {
		fmt.Fprintf(b, "%d. %s\n", i+1, r)
	}
	b.WriteByte('\n')
}
