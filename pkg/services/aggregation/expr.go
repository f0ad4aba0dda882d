package aggregation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/PaesslerAG/gval"
)

var (
	language = gval.Full()

	quoted     = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|` + "`[^`]*`")
	identifier = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*`)
)

var keywords = map[string]bool{"true": true, "false": true, "nil": true, "in": true}

// expression is a compiled column expression and the columns it reads.
type expression struct {
	source string
	eval   gval.Evaluable
	refs   []string
}

func compile(src string) (*expression, error) {
	eval, err := language.NewEvaluable(src)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", src, err)
	}
	return &expression{source: src, eval: eval, refs: references(src)}, nil
}

// references returns the identifiers of src outside string literals, in
// first-seen order.
func references(src string) []string {
	stripped := quoted.ReplaceAllString(src, `""`)
	seen := map[string]bool{}
	var refs []string
	for _, m := range identifier.FindAllStringIndex(stripped, -1) {
		name := stripped[m[0]:m[1]]
		if keywords[name] || seen[name] {
			continue
		}
		// function call, not a column
		if m[1] < len(stripped) && stripped[m[1]] == '(' {
			continue
		}
		seen[name] = true
		refs = append(refs, name)
	}
	return refs
}

// evaluate runs the expression against row. Any null input yields null, as
// does a non-finite numeric result.
func (e *expression) evaluate(row map[string]any) (any, error) {
	params := make(map[string]any, len(e.refs))
	for _, ref := range e.refs {
		v := row[ref]
		if v == nil {
			return nil, nil
		}
		if t, ok := v.(time.Time); ok {
			v = float64(t.Unix())
		}
		params[ref] = v
	}
	out, err := e.eval(context.Background(), params)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	switch v := out.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil
		}
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return out, nil
}
