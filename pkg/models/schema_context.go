package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Provenance records how a table entered the schema-context packet.
type Provenance string

const (
	// ProvenanceRetrieval marks tables selected by dense/keyword ranking.
	ProvenanceRetrieval Provenance = "retrieval"
	// ProvenanceFKExpansion marks near-miss tables pulled in over one FK hop.
	ProvenanceFKExpansion Provenance = "fk_expansion"
)

// ColumnEntry describes one column of a catalog table. (table, name) is
// unique; DataType is the canonical PostgreSQL type name.
type ColumnEntry struct {
	Table          string `json:"table"`
	Name           string `json:"name"`
	Ordinal        int    `json:"ordinal"`
	DataType       string `json:"data_type"`
	IsPrimaryKey   bool   `json:"is_primary_key"`
	IsForeignKey   bool   `json:"is_foreign_key"`
	FKTargetTable  string `json:"fk_target_table,omitempty"`
	FKTargetColumn string `json:"fk_target_column,omitempty"`
	Gloss          string `json:"gloss,omitempty"`
}

// FKEdge is a directed foreign-key edge between two catalog columns.
type FKEdge struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// TableEntry is the catalog-level table record, independent of any request.
type TableEntry struct {
	Schema   string `json:"schema"`
	Name     string `json:"name"`
	Module   string `json:"module"`
	Gloss    string `json:"gloss,omitempty"`
	IsHub    bool   `json:"is_hub"`
	FKDegree int    `json:"fk_degree"`
}

// TableContext is one retrieved table inside a schema-context packet,
// carrying everything prompt assembly and validation need.
type TableContext struct {
	Schema     string        `json:"schema"`
	Name       string        `json:"name"`
	Module     string        `json:"module"`
	Gloss      string        `json:"gloss,omitempty"`
	MSchema    string        `json:"m_schema"`
	Similarity float64       `json:"similarity"`
	Provenance Provenance    `json:"provenance"`
	IsHub      bool          `json:"is_hub"`
	Columns    []ColumnEntry `json:"columns"`
}

// RenderMSchema produces the compact textual rendering of a table used in
// LLM prompts: table(col1 TYPE [PK], col2 TYPE [FK->other.col], ...).
func (t *TableContext) RenderMSchema() string {
	var b strings.Builder
	b.WriteString(t.Name)
	b.WriteByte('(')
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(c.DataType)
		if c.IsPrimaryKey {
			b.WriteString(" [PK]")
		}
		if c.IsForeignKey && c.FKTargetTable != "" {
			fmt.Fprintf(&b, " [FK->%s.%s]", c.FKTargetTable, c.FKTargetColumn)
		}
	}
	b.WriteByte(')')
	return b.String()
}

// SchemaContextPacket is the immutable per-request slice of schema visible
// to generation and validation. Built once by the retriever and never
// mutated afterwards.
type SchemaContextPacket struct {
	QueryID    uuid.UUID      `json:"query_id"`
	DatabaseID string         `json:"database_id"`
	Question   string         `json:"question"`
	Tables     []TableContext `json:"tables"`
	FKEdges    []FKEdge       `json:"fk_edges"`
	Modules    []string       `json:"modules"`
	JoinHints  []string       `json:"join_hints"`
	JoinPaths  []string       `json:"join_paths"`
}

// TableNames returns the names of all tables in the packet, sorted.
func (p *SchemaContextPacket) TableNames() []string {
	names := make([]string, 0, len(p.Tables))
	for _, t := range p.Tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// HasTable reports whether name (case-insensitive, unqualified) is in the
// packet's allowed table set.
func (p *SchemaContextPacket) HasTable(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	for _, t := range p.Tables {
		if strings.ToLower(t.Name) == name {
			return true
		}
	}
	return false
}

// Table returns the packet entry for name, or nil.
func (p *SchemaContextPacket) Table(name string) *TableContext {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range p.Tables {
		if strings.ToLower(p.Tables[i].Name) == name {
			return &p.Tables[i]
		}
	}
	return nil
}

// TableHasColumn reports whether the named packet table contains column.
func (p *SchemaContextPacket) TableHasColumn(table, column string) bool {
	t := p.Table(table)
	if t == nil {
		return false
	}
	column = strings.ToLower(column)
	for _, c := range t.Columns {
		if strings.ToLower(c.Name) == column {
			return true
		}
	}
	return false
}

// FKNeighbors returns the packet tables one FK hop away from table.
func (p *SchemaContextPacket) FKNeighbors(table string) []string {
	table = strings.ToLower(table)
	seen := make(map[string]bool)
	var out []string
	for _, e := range p.FKEdges {
		var neighbor string
		if strings.ToLower(e.FromTable) == table {
			neighbor = e.ToTable
		} else if strings.ToLower(e.ToTable) == table {
			neighbor = e.FromTable
		} else {
			continue
		}
		if !seen[strings.ToLower(neighbor)] {
			seen[strings.ToLower(neighbor)] = true
			out = append(out, neighbor)
		}
	}
	sort.Strings(out)
	return out
}
