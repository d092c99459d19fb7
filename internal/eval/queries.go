package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// Label values recognized on evaluation queries.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
)

// maxQueryLineBytes bounds a single JSONL line.
const maxQueryLineBytes = 1 << 20

// Query is one evaluation input: the query text, an optional relevance
// label, and free-form notes carried through to the per-query row.
type Query struct {
	Text  string
	Label string
	Notes string
}

// Labeled reports whether the query carries a relevance label.
func (q Query) Labeled() bool {
	return q.Label != ""
}

// rawQuery is the JSONL wire form. Labels arrive as "positive" or
// "negative", but numeric 1/0 from older query sets is tolerated.
type rawQuery struct {
	Query string `json:"query"`
	Label any    `json:"label"`
	Notes string `json:"notes"`
}

// LoadQueries reads a JSONL query file: one JSON object per line with a
// required "query" field and optional "label" and "notes". Blank lines
// are skipped. Any unreadable line fails the whole load; a partially
// parsed query set would silently skew every metric downstream.
func LoadQueries(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeQueryFile,
			fmt.Sprintf("cannot read queries file %s", path), err).
			WithSuggestion("Pass --queries with a JSONL file of {\"query\": ..., \"label\": ...} lines")
	}
	defer f.Close()

	var queries []Query
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxQueryLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawQuery
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, herrors.New(herrors.ErrCodeQueryFile,
				fmt.Sprintf("queries file %s line %d: invalid JSON", path, lineNo), err)
		}
		if strings.TrimSpace(raw.Query) == "" {
			return nil, herrors.Newf(herrors.ErrCodeQueryFile,
				"queries file %s line %d: missing query text", path, lineNo)
		}

		label, err := normalizeLabel(raw.Label)
		if err != nil {
			return nil, herrors.Newf(herrors.ErrCodeQueryFile,
				"queries file %s line %d: %v", path, lineNo, err)
		}

		queries = append(queries, Query{Text: raw.Query, Label: label, Notes: raw.Notes})
	}
	if err := scanner.Err(); err != nil {
		return nil, herrors.New(herrors.ErrCodeQueryFile,
			fmt.Sprintf("cannot read queries file %s", path), err)
	}
	if len(queries) == 0 {
		return nil, herrors.Newf(herrors.ErrCodeQueryFile,
			"queries file %s contains no queries", path)
	}

	return queries, nil
}

// normalizeLabel maps the accepted label encodings onto the canonical
// strings. Absent labels normalize to "".
func normalizeLabel(v any) (string, error) {
	switch label := v.(type) {
	case nil:
		return "", nil
	case string:
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "":
			return "", nil
		case LabelPositive, "1":
			return LabelPositive, nil
		case LabelNegative, "0":
			return LabelNegative, nil
		}
	case float64:
		switch label {
		case 1:
			return LabelPositive, nil
		case 0:
			return LabelNegative, nil
		}
	}
	return "", fmt.Errorf("invalid label %v (expected %q or %q)", v, LabelPositive, LabelNegative)
}
