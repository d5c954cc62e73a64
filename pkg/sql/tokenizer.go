// Package sql provides the structural SQL validator: a small hand-written
// tokenizer that separates code from literals and comments, and policy
// checks that operate on the code stream only.
package sql

import "strings"

// SegmentKind identifies what a tokenizer segment contains.
type SegmentKind int

const (
	SegmentCode SegmentKind = iota
	SegmentString
	SegmentQuotedIdent
	SegmentDollarQuoted
	SegmentLineComment
	SegmentBlockComment
)

// Segment is one contiguous run of input with a single kind. Text includes
// the delimiters (quotes, comment markers, dollar tags).
type Segment struct {
	Kind  SegmentKind
	Text  string
	Start int
}

// Scan splits sql into segments and builds a code-only view in which every
// non-code segment is replaced by spaces of equal length, so byte offsets
// into Code line up with the original input.
type ScanResult struct {
	Segments []Segment
	Code     string
}

// Literals returns the payloads of all string literals (quotes stripped).
func (r *ScanResult) Literals() []string {
	var out []string
	for _, s := range r.Segments {
		if s.Kind != SegmentString {
			continue
		}
		text := s.Text
		if len(text) >= 2 {
			text = text[1 : len(text)-1]
		}
		out = append(out, strings.ReplaceAll(text, "''", "'"))
	}
	return out
}

// Scan runs the tokenizer state machine over sql. It distinguishes five
// literal kinds: '...' strings (with '' and \' escapes), "..." quoted
// identifiers, $$...$$ / $tag$...$tag$ dollar quoting, -- line comments,
// and /* ... */ block comments (nested, as PostgreSQL nests them).
func Scan(sql string) *ScanResult {
	var segments []Segment
	code := make([]byte, len(sql))

	i := 0
	segStart := 0
	flushCode := func(end int) {
		if end > segStart {
			segments = append(segments, Segment{Kind: SegmentCode, Text: sql[segStart:end], Start: segStart})
		}
	}

	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\'':
			flushCode(i)
			start := i
			i++
			for i < len(sql) {
				if sql[i] == '\\' && i+1 < len(sql) {
					i += 2
					continue
				}
				if sql[i] == '\'' {
					if i+1 < len(sql) && sql[i+1] == '\'' {
						i += 2 // doubled quote stays inside the literal
						continue
					}
					i++
					break
				}
				i++
			}
			segments = append(segments, Segment{Kind: SegmentString, Text: sql[start:i], Start: start})
			blank(code, start, i)
			segStart = i

		case c == '"':
			flushCode(i)
			start := i
			i++
			for i < len(sql) {
				if sql[i] == '"' {
					i++
					break
				}
				i++
			}
			seg := Segment{Kind: SegmentQuotedIdent, Text: sql[start:i], Start: start}
			segments = append(segments, seg)
			// Quoted identifiers are still identifiers: keep them in the
			// code stream (without quotes) so table/column checks see them.
			copy(code[start:i], strings.Repeat(" ", i-start))
			inner := strings.Trim(seg.Text, `"`)
			copy(code[start+1:], inner)
			segStart = i

		case c == '$' && dollarTagEnd(sql, i) > 0:
			flushCode(i)
			start := i
			tagEnd := dollarTagEnd(sql, i)
			tag := sql[i:tagEnd]
			closeIdx := strings.Index(sql[tagEnd:], tag)
			if closeIdx < 0 {
				i = len(sql)
			} else {
				i = tagEnd + closeIdx + len(tag)
			}
			segments = append(segments, Segment{Kind: SegmentDollarQuoted, Text: sql[start:i], Start: start})
			blank(code, start, i)
			segStart = i

		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			flushCode(i)
			start := i
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			segments = append(segments, Segment{Kind: SegmentLineComment, Text: sql[start:i], Start: start})
			blank(code, start, i)
			segStart = i

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			flushCode(i)
			start := i
			depth := 0
			for i < len(sql) {
				if sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*' {
					depth++
					i += 2
					continue
				}
				if sql[i] == '*' && i+1 < len(sql) && sql[i+1] == '/' {
					depth--
					i += 2
					if depth == 0 {
						break
					}
					continue
				}
				i++
			}
			segments = append(segments, Segment{Kind: SegmentBlockComment, Text: sql[start:i], Start: start})
			blank(code, start, i)
			segStart = i

		default:
			code[i] = c
			i++
		}
	}
	flushCode(len(sql))

	return &ScanResult{Segments: segments, Code: string(code)}
}

// dollarTagEnd returns the index one past a dollar-quote opening tag
// ($$ or $tag$) starting at i, or 0 when sql[i:] is not a dollar quote.
// A lone $ (positional parameters like $1) is not a dollar quote.
func dollarTagEnd(sql string, i int) int {
	j := i + 1
	for j < len(sql) {
		c := sql[j]
		if c == '$' {
			return j + 1
		}
		if !isTagChar(c) {
			return 0
		}
		j++
	}
	return 0
}

func isTagChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func blank(code []byte, start, end int) {
	for i := start; i < end && i < len(code); i++ {
		code[i] = ' '
	}
}
