package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// Intent classifies what a question asks for. Classification drives
// projection checks and, on responses, the intent field.
type Intent string

const (
	IntentLookupByName Intent = "lookup_by_name"
	IntentLookupState  Intent = "lookup_state"
	IntentCount        Intent = "count"
	IntentList         Intent = "list"
	IntentAggregate    Intent = "aggregate"
	IntentCompare      Intent = "compare"
	IntentRank         Intent = "rank"
	IntentGeneral      Intent = "general"
)

// SemanticValidator checks that SQL references the entities and intent the
// question expressed, independent of syntactic validity.
type SemanticValidator struct{}

// NewSemanticValidator creates a SemanticValidator.
func NewSemanticValidator() *SemanticValidator {
	return &SemanticValidator{}
}

var businessSuffixes = []string{
	"LLC", "Inc", "Corp", "Co", "Ltd", "Services", "Systems", "Technologies",
	"Solutions", "Group", "Partners", "Holdings", "Enterprises", "Industries",
	"International", "Medical", "Financial", "Energy", "Distribution",
	"Logistics", "Manufacturing", "Consulting", "Analytics", "Software",
	"Networks", "Communications", "Healthcare",
}

// phraseStopwords filters capitalized phrases that are not entities:
// question phrasings, calendar words, common place names.
var phraseStopwords = map[string]bool{
	"How": true, "What": true, "Which": true, "Where": true, "When": true,
	"Who": true, "Why": true, "Show": true, "List": true, "Give": true,
	"Find": true, "Tell": true, "Count": true, "The": true, "In": true,
	"January": true, "February": true, "March": true, "April": true,
	"May": true, "June": true, "July": true, "August": true,
	"September": true, "October": true, "November": true, "December": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
	"United": true, "States": true, "New": true, "North": true,
	"South": true, "East": true, "West": true, "America": true,
}

// stateAbbrevs holds the 50 US state codes.
var stateAbbrevs = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true,
}

// stateNames maps long-form state names to their codes, so "California"
// in a question legitimizes 'CA' in a predicate.
var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT",
	"delaware": "DE", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI",
	"minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND",
	"ohio": "OH", "oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
}

var (
	quotedRe     = regexp.MustCompile(`["']([^"']{2,})["']`)
	capPhraseRe  = regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z&]+)+)\b`)
	stateCodeRe  = regexp.MustCompile(`\b([A-Za-z]{2})\b`)
	yearRe       = regexp.MustCompile(`\b(20[0-3][0-9])\b`)
	sqlStateLit  = regexp.MustCompile(`(?i)state\s*=\s*'([A-Z]{2})'`)
	sqlYearRe    = regexp.MustCompile(`\b(20[0-3][0-9])\b`)
	countIntent  = regexp.MustCompile(`(?i)\b(how many|count|number of|total (number|count))\b`)
	stateIntent  = regexp.MustCompile(`(?i)\b(which state|what state|where is .+ located)\b`)
	rankIntent   = regexp.MustCompile(`(?i)\b(top \d+|bottom \d+|highest|lowest|most|least|best|worst)\b`)
	compareInt   = regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|difference between)\b`)
	aggIntent    = regexp.MustCompile(`(?i)\b(average|avg|sum|total|mean)\b`)
	listIntent   = regexp.MustCompile(`(?i)\b(list|show|display|all)\b`)
)

// Entities holds what the semantic validator extracted from a question.
type Entities struct {
	Companies []string // quoted strings and proper-noun phrases
	States    []string // two-letter codes explicitly present
	Years     []string
}

// ExtractEntities pulls quoted strings, business-suffixed proper-noun
// phrases, general capitalized phrases, state codes, and years out of the
// question.
func ExtractEntities(question string) Entities {
	var e Entities
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		e.Companies = append(e.Companies, s)
	}

	// Quoted strings carry the highest confidence.
	for _, m := range quotedRe.FindAllStringSubmatch(question, -1) {
		add(m[1])
	}

	for _, m := range capPhraseRe.FindAllStringSubmatch(question, -1) {
		phrase := m[1]
		words := strings.Fields(phrase)
		if phraseStopwords[words[0]] {
			continue
		}
		if hasBusinessSuffix(phrase) {
			add(phrase)
			continue
		}
		// General capitalized multi-word phrases, filtered by stopwords.
		if len(phrase) > 5 && !containsStopword(words) {
			add(phrase)
		}
	}

	for _, m := range stateCodeRe.FindAllStringSubmatch(question, -1) {
		code := strings.ToUpper(m[1])
		if stateAbbrevs[code] && m[1] == code { // only explicit uppercase codes
			e.States = append(e.States, code)
		}
	}
	for _, m := range yearRe.FindAllStringSubmatch(question, -1) {
		e.Years = append(e.Years, m[1])
	}
	return e
}

func hasBusinessSuffix(phrase string) bool {
	for _, suffix := range businessSuffixes {
		if strings.HasSuffix(phrase, " "+suffix) || strings.HasSuffix(phrase, " "+suffix+".") {
			return true
		}
	}
	return false
}

func containsStopword(words []string) bool {
	for _, w := range words {
		if phraseStopwords[strings.Trim(w, ".,?!")] {
			return true
		}
	}
	return false
}

// ClassifyIntent picks the question's intent; first match wins.
func ClassifyIntent(question string, entities Entities) Intent {
	switch {
	case stateIntent.MatchString(question):
		return IntentLookupState
	case countIntent.MatchString(question):
		return IntentCount
	case rankIntent.MatchString(question):
		return IntentRank
	case compareInt.MatchString(question):
		return IntentCompare
	case aggIntent.MatchString(question):
		return IntentAggregate
	case listIntent.MatchString(question):
		return IntentList
	case len(entities.Companies) > 0:
		return IntentLookupByName
	default:
		return IntentGeneral
	}
}

// Check runs every semantic check against the question and SQL.
func (v *SemanticValidator) Check(question, sql string) (Intent, []models.Issue) {
	entities := ExtractEntities(question)
	intent := ClassifyIntent(question, entities)
	lowerSQL := strings.ToLower(sql)
	var issues []models.Issue

	// MISSING_ENTITY: every company-like phrase must appear in the SQL.
	for _, company := range entities.Companies {
		if !strings.Contains(lowerSQL, strings.ToLower(company)) {
			issues = append(issues, models.Issue{
				Code:       models.IssueMissingEntity,
				Severity:   models.SeverityError,
				Message:    fmt.Sprintf("the question names %q but the SQL never references it", company),
				Suggestion: fmt.Sprintf("add a predicate such as name = '%s'", company),
				Metadata:   map[string]string{"entity": company},
			})
		}
	}

	// WRONG_SELECT: "which state" questions must project state.
	if intent == IntentLookupState && !strings.Contains(lowerSQL, "state") {
		issues = append(issues, models.Issue{
			Code:       models.IssueWrongSelect,
			Severity:   models.SeverityWarning,
			Message:    "the question asks for a state but the projection does not include a state column",
			Suggestion: "include the state column in the SELECT list",
		})
	}

	// MISSING_AGGREGATION: count questions need COUNT(.
	if intent == IntentCount && !strings.Contains(lowerSQL, "count(") {
		issues = append(issues, models.Issue{
			Code:       models.IssueMissingAggregation,
			Severity:   models.SeverityWarning,
			Message:    "the question asks for a count but the SQL has no COUNT aggregate",
			Suggestion: "use COUNT(*) in the SELECT list",
		})
	}

	// HALLUCINATED_VALUE: state literals must be grounded in the question.
	allowedStates := make(map[string]bool)
	for _, s := range entities.States {
		allowedStates[s] = true
	}
	lowerQuestion := strings.ToLower(question)
	for name, code := range stateNames {
		if strings.Contains(lowerQuestion, name) {
			allowedStates[code] = true
		}
	}
	for _, m := range sqlStateLit.FindAllStringSubmatch(sql, -1) {
		code := strings.ToUpper(m[1])
		if !stateAbbrevs[code] {
			continue
		}
		if !allowedStates[code] {
			issues = append(issues, models.Issue{
				Code:     models.IssueHallucinatedValue,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("the SQL filters on state '%s' but the question never mentions that state", code),
				Metadata: map[string]string{"value": code},
			})
		}
	}

	// WRONG_YEAR: year literals must match the question's years, when any.
	if len(entities.Years) > 0 {
		questionYears := make(map[string]bool)
		for _, y := range entities.Years {
			questionYears[y] = true
		}
		for _, m := range sqlYearRe.FindAllStringSubmatch(sql, -1) {
			if !questionYears[m[1]] {
				issues = append(issues, models.Issue{
					Code:     models.IssueWrongYear,
					Severity: models.SeverityWarning,
					Message:  fmt.Sprintf("the SQL uses year %s but the question names %s", m[1], strings.Join(entities.Years, ", ")),
					Metadata: map[string]string{"year": m[1]},
				})
			}
		}
	}

	return intent, issues
}
