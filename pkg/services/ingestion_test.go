package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

func TestTableEmbedText(t *testing.T) {
	table := models.TableEntry{Schema: "public", Name: "filings", Module: "compliance", Gloss: "Regulatory filings"}
	cols := []models.ColumnEntry{
		{Table: "filings", Name: "id", DataType: "uuid", IsPrimaryKey: true},
		{Table: "filings", Name: "company_id", DataType: "uuid", IsForeignKey: true, FKTargetTable: "companies", FKTargetColumn: "id"},
		{Table: "filings", Name: "filed_at", DataType: "timestamptz"},
	}
	fks := []models.FKEdge{
		{FromTable: "filings", FromColumn: "company_id", ToTable: "companies", ToColumn: "id"},
	}

	text := tableEmbedText(table, cols, fks)

	for _, want := range []string{
		"Table: filings",
		"Module: compliance",
		"Description: Regulatory filings",
		"id (uuid) [PK]",
		"company_id (uuid) [FK -> companies.id]",
		"filed_at (timestamptz)",
		"company_id -> companies.id",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if strings.HasSuffix(text, "\n") {
		t.Errorf("trailing newline not trimmed")
	}
}

func TestTableEmbedText_NoFKSection(t *testing.T) {
	table := models.TableEntry{Name: "lookup", Module: ""}
	text := tableEmbedText(table, nil, nil)
	if strings.Contains(text, "Foreign Keys") {
		t.Errorf("empty FK section rendered:\n%s", text)
	}
}

func TestColumnEmbedText(t *testing.T) {
	table := models.TableEntry{Name: "companies", Module: "registry"}

	pk := columnEmbedText(table, models.ColumnEntry{Name: "id", DataType: "uuid", IsPrimaryKey: true})
	if !strings.Contains(pk, "Column: companies.id (uuid) [Primary Key] in registry module") {
		t.Errorf("pk text = %q", pk)
	}

	fk := columnEmbedText(table, models.ColumnEntry{
		Name: "parent_id", DataType: "uuid",
		IsForeignKey: true, FKTargetTable: "companies", FKTargetColumn: "id",
		Gloss: "Parent company",
	})
	if !strings.Contains(fk, "[Foreign Key -> companies.id]") {
		t.Errorf("fk annotation missing: %q", fk)
	}
	if !strings.HasSuffix(fk, ". Parent company") {
		t.Errorf("gloss missing: %q", fk)
	}
}

func TestModuleEmbedText(t *testing.T) {
	text := moduleEmbedText("registry", []string{"companies", "officers"})
	if text != "Module: registry. Tables: companies, officers" {
		t.Errorf("got %q", text)
	}

	var many []string
	for i := 0; i < 30; i++ {
		many = append(many, fmt.Sprintf("t%02d", i))
	}
	capped := moduleEmbedText("big", many)
	if strings.Contains(capped, "t20") {
		t.Errorf("table list not capped at %d: %q", maxModuleTableNames, capped)
	}
	if !strings.Contains(capped, "t19") {
		t.Errorf("capped list lost t19: %q", capped)
	}
}

func TestJobID(t *testing.T) {
	tests := []struct {
		job  embedJob
		want string
	}{
		{embedJob{entityType: "table", table: "companies"}, "table:companies"},
		{embedJob{entityType: "column", table: "companies", column: "name"}, "column:companies.name"},
		{embedJob{entityType: "module", module: "registry"}, "module:registry"},
	}
	for _, tt := range tests {
		if got := jobID(tt.job); got != tt.want {
			t.Errorf("jobID(%+v) = %q, want %q", tt.job, got, tt.want)
		}
	}
}
