package services

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

func TestParseUndefinedName(t *testing.T) {
	tests := []struct {
		name    string
		message string
		kind    string
		want    string
	}{
		{
			name:    "plain column",
			message: `column "revenue" does not exist`,
			kind:    "column",
			want:    "revenue",
		},
		{
			name:    "qualified column keeps last segment",
			message: `column c.revenue does not exist`,
			kind:    "column",
			want:    "revenue",
		},
		{
			name:    "relation",
			message: `relation "employees" does not exist`,
			kind:    "relation",
			want:    "employees",
		},
		{
			name:    "kind mismatch",
			message: `relation "employees" does not exist`,
			kind:    "column",
			want:    "",
		},
		{
			name:    "unrelated message",
			message: "syntax error at or near SELECT",
			kind:    "column",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseUndefinedName(tt.message, tt.kind); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "", 3},
		{"state", "states", 1},
		{"revenue", "revenu", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func candidatePacket() *models.SchemaContextPacket {
	return &models.SchemaContextPacket{
		DatabaseID: "public",
		Tables: []models.TableContext{
			{
				Name: "companies",
				Columns: []models.ColumnEntry{
					{Table: "companies", Name: "id", DataType: "uuid"},
					{Table: "companies", Name: "name", DataType: "text"},
					{Table: "companies", Name: "state", DataType: "text"},
					{Table: "companies", Name: "filing_status", DataType: "text"},
				},
			},
			{
				Name: "filings",
				Columns: []models.ColumnEntry{
					{Table: "filings", Name: "id", DataType: "uuid"},
					{Table: "filings", Name: "filed_at", DataType: "timestamptz"},
				},
			},
		},
	}
}

func TestColumnCandidates(t *testing.T) {
	p := &Planner{logger: zap.NewNop()}
	ctx := context.Background()
	packet := candidatePacket()

	t.Run("exact match ranks first", func(t *testing.T) {
		cands := p.columnCandidates(ctx, "state", packet)
		if len(cands) == 0 {
			t.Fatal("no candidates")
		}
		if cands[0].Column != "state" || cands[0].MatchType != "exact" || cands[0].MatchScore != 1.0 {
			t.Errorf("top candidate = %+v", cands[0])
		}
	})

	t.Run("inflection match", func(t *testing.T) {
		cands := p.columnCandidates(ctx, "states", packet)
		found := false
		for _, c := range cands {
			if c.Column == "state" {
				found = true
				if c.MatchScore < 0.6 {
					t.Errorf("state scored too low: %+v", c)
				}
			}
		}
		if !found {
			t.Errorf("state missing from candidates for \"states\": %+v", cands)
		}
	})

	t.Run("prefix match", func(t *testing.T) {
		cands := p.columnCandidates(ctx, "filing", packet)
		found := false
		for _, c := range cands {
			if c.Column == "filing_status" && c.MatchType == "prefix" {
				found = true
			}
		}
		if !found {
			t.Errorf("filing_status prefix match missing: %+v", cands)
		}
	})

	t.Run("no resemblance and no embedder yields nothing", func(t *testing.T) {
		cands := p.columnCandidates(ctx, "xylophone_frequency", packet)
		if len(cands) != 0 {
			t.Errorf("expected no candidates, got %+v", cands)
		}
	})

	t.Run("capped at five", func(t *testing.T) {
		cands := p.columnCandidates(ctx, "id", packet)
		if len(cands) > maxColumnCandidates {
			t.Errorf("got %d candidates, cap is %d", len(cands), maxColumnCandidates)
		}
	})
}
