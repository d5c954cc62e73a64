package prompts

import (
	"strings"
	"testing"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

func promptPacket() *models.SchemaContextPacket {
	return &models.SchemaContextPacket{
		DatabaseID: "public",
		Tables: []models.TableContext{
			{
				Name:   "filings",
				Module: "compliance",
				Gloss:  "Regulatory filings",
				Columns: []models.ColumnEntry{
					{Name: "id", DataType: "uuid", IsPrimaryKey: true},
					{Name: "company_id", DataType: "uuid", IsForeignKey: true, FKTargetTable: "companies", FKTargetColumn: "id"},
				},
			},
			{
				Name:   "companies",
				Module: "registry",
				Columns: []models.ColumnEntry{
					{Name: "id", DataType: "uuid", IsPrimaryKey: true},
					{Name: "name", DataType: "text"},
				},
			},
		},
		FKEdges: []models.FKEdge{
			{FromTable: "filings", FromColumn: "company_id", ToTable: "companies", ToColumn: "id"},
		},
		JoinHints: []string{"filings.company_id = companies.id"},
		JoinPaths: []string{"filings -> companies"},
	}
}

func TestBase_Deterministic(t *testing.T) {
	packet := promptPacket()
	a := Base(packet, "how many filings", JoinHintEdges)
	b := Base(packet, "how many filings", JoinHintEdges)
	if a != b {
		t.Fatal("base prompt not deterministic for identical inputs")
	}
}

func TestBase_Sections(t *testing.T) {
	packet := promptPacket()
	prompt := Base(packet, "how many filings in 2023?", JoinHintEdges)

	for _, want := range []string{
		"## Schema",
		"### compliance",
		"### registry",
		"-- Regulatory filings",
		"filings(id uuid [PK], company_id uuid [FK->companies.id])",
		"## Join Hints",
		"filings.company_id = companies.id",
		"## Column Selection Rules",
		"## PostgreSQL Rules",
		"## Question\nhow many filings in 2023?",
		"## SQL Query",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("missing %q", want)
		}
	}

	// Modules are ordered alphabetically.
	if strings.Index(prompt, "### compliance") > strings.Index(prompt, "### registry") {
		t.Errorf("modules out of order")
	}
}

func TestBase_JoinHintFormats(t *testing.T) {
	packet := promptPacket()

	edges := Base(packet, "q", JoinHintEdges)
	if !strings.Contains(edges, "## Join Hints") || strings.Contains(edges, "## Suggested Join Paths") {
		t.Errorf("edges format wrong")
	}

	paths := Base(packet, "q", JoinHintPaths)
	if strings.Contains(paths, "## Join Hints") || !strings.Contains(paths, "## Suggested Join Paths") {
		t.Errorf("paths format wrong")
	}

	both := Base(packet, "q", JoinHintBoth)
	if !strings.Contains(both, "## Join Hints") || !strings.Contains(both, "## Suggested Join Paths") {
		t.Errorf("both format wrong")
	}

	none := Base(packet, "q", JoinHintNone)
	if strings.Contains(none, "## Join Hints") || strings.Contains(none, "## Suggested Join Paths") {
		t.Errorf("none format wrong")
	}
}

func TestBase_EmptyModuleHeader(t *testing.T) {
	packet := &models.SchemaContextPacket{
		DatabaseID: "public",
		Tables:     []models.TableContext{{Name: "t", Columns: []models.ColumnEntry{{Name: "id", DataType: "int8"}}}},
	}
	prompt := Base(packet, "q", JoinHintNone)
	if !strings.Contains(prompt, "### general") {
		t.Errorf("empty module should render as general")
	}
}

func TestMultiCandidate(t *testing.T) {
	out := MultiCandidate("BASE", 3)
	if !strings.HasPrefix(out, "BASE") {
		t.Errorf("base prompt not preserved")
	}
	if !strings.Contains(out, "3 different SQL queries") {
		t.Errorf("candidate count missing")
	}
	if !strings.Contains(out, CandidateDelimiter) {
		t.Errorf("delimiter instruction missing")
	}
}

func TestRepair(t *testing.T) {
	if got := Repair("BASE", nil); got != "BASE" {
		t.Errorf("no deltas should return base unchanged, got %q", got)
	}
	got := Repair("BASE", []string{"D1", "D2"})
	if got != "BASE\n\nD1\n\nD2" {
		t.Errorf("got %q", got)
	}
}
