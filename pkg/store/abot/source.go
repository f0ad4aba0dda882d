// Package abot adapts the Abot SDK command gateway to the row set query
// interface used by the report pipeline.
package abot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Command is one structured request to the SDK.
type Command struct {
	Name string         `json:"command"`
	Args map[string]any `json:"args,omitempty"`
}

// Provider executes commands and returns the raw response document. Its
// transport is opaque to callers.
type Provider interface {
	Execute(ctx context.Context, cmd Command) ([]byte, error)
}

type ProviderFunc func(ctx context.Context, cmd Command) ([]byte, error)

func (f ProviderFunc) Execute(ctx context.Context, cmd Command) ([]byte, error) {
	return f(ctx, cmd)
}

// CommandError is a failure reported by the SDK itself.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("abot %s: %s", e.Code, e.Message)
}

// error codes that mean the command, not the service, is at fault
var invalidCodes = map[string]bool{
	"unknown_command":  true,
	"invalid_argument": true,
	"unknown_metric":   true,
}

// Source is a domain.DataSource over a Provider. The descriptor's entity is
// the command name; predicates and the range become arguments.
type Source struct {
	provider Provider
}

func NewSource(provider Provider) (*Source, error) {
	if provider == nil {
		return nil, fmt.Errorf("abot provider is nil")
	}
	return &Source{provider: provider}, nil
}

func (s *Source) Query(ctx context.Context, q domain.QueryDescriptor) (*domain.RowSet, error) {
	cmd, err := command(q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := s.provider.Execute(ctx, cmd)
	if err != nil {
		return nil, classify(ctx, cmd, err)
	}

	rs, err := Decode(body)
	if err != nil {
		return nil, classify(ctx, cmd, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("command", cmd.Name).
		Int("rows", rs.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("abot command finished")
	return rs, nil
}

func command(q domain.QueryDescriptor) (Command, error) {
	if q.Entity == "" {
		return Command{}, domain.Errorf(domain.KindQueryError, "abot query has no command")
	}
	cmd := Command{Name: q.Entity, Args: map[string]any{}}
	if q.Range != nil {
		cmd.Args["from"] = q.Range.Start.UTC().Format(time.RFC3339)
		cmd.Args["to"] = q.Range.End.UTC().Format(time.RFC3339)
	}
	for _, p := range q.Predicates {
		switch p.Op {
		case domain.OpEq:
			if len(p.Values) != 1 {
				return Command{}, domain.Errorf(domain.KindQueryError, "argument %q: eq takes exactly one value", p.Column)
			}
			cmd.Args[p.Column] = p.Values[0]
		case domain.OpIn:
			if len(p.Values) == 0 {
				return Command{}, domain.Errorf(domain.KindQueryError, "argument %q: in requires at least one value", p.Column)
			}
			cmd.Args[p.Column] = p.Values
		default:
			return Command{}, domain.Errorf(domain.KindQueryError, "argument %q: operator %q is not supported by abot commands", p.Column, p.Op)
		}
	}
	if q.Limit > 0 {
		cmd.Args["limit"] = q.Limit
	}
	return cmd, nil
}

func classify(ctx context.Context, cmd Command, err error) error {
	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	var cmdErr *CommandError
	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewError(domain.KindRequestCancelled, fmt.Errorf("abot %s: %w", cmd.Name, err))
	case errors.As(err, &cmdErr) && invalidCodes[cmdErr.Code]:
		return domain.NewError(domain.KindQueryError, fmt.Errorf("abot %s: %w", cmd.Name, err))
	}
	return domain.NewError(domain.KindDataUnavailable, fmt.Errorf("abot %s: %w", cmd.Name, err))
}

// Decode turns an SDK response into a RowSet. The expected shape is
// {"status":"ok","data":{"columns":[{"name","type"}],"rows":[[...]]}}.
func Decode(body []byte) (*domain.RowSet, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid json")
	}
	doc := gjson.ParseBytes(body)

	if status := doc.Get("status").String(); status != "ok" {
		return nil, &CommandError{
			Code:    doc.Get("error.code").String(),
			Message: doc.Get("error.message").String(),
		}
	}

	var columns []domain.Column
	for _, c := range doc.Get("data.columns").Array() {
		col := domain.Column{Name: c.Get("name").String(), Type: domain.ColumnType(c.Get("type").String())}
		if !col.Type.Valid() {
			return nil, fmt.Errorf("column %q has unknown type %q", col.Name, col.Type)
		}
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("response has no columns")
	}

	var rows [][]any
	for r, raw := range doc.Get("data.rows").Array() {
		cells := raw.Array()
		if len(cells) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(cells), len(columns))
		}
		row := make([]any, len(columns))
		for i, cell := range cells {
			v, err := value(columns[i].Type, cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, columns[i].Name, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	return domain.NewRowSet(columns, rows)
}

func value(t domain.ColumnType, cell gjson.Result) (any, error) {
	if cell.Type == gjson.Null {
		return nil, nil
	}
	switch t {
	case domain.TypeString:
		return cell.String(), nil
	case domain.TypeNumber:
		if cell.Type != gjson.Number {
			return nil, fmt.Errorf("%s is not a number", cell.Raw)
		}
		return cell.Float(), nil
	case domain.TypeBoolean:
		if cell.Type != gjson.True && cell.Type != gjson.False {
			return nil, fmt.Errorf("%s is not a boolean", cell.Raw)
		}
		return cell.Bool(), nil
	case domain.TypeTimestamp:
		ts, err := time.Parse(time.RFC3339Nano, cell.String())
		if err != nil {
			return nil, fmt.Errorf("%s is not an RFC 3339 timestamp", cell.Raw)
		}
		return ts.UTC(), nil
	}
	return nil, fmt.Errorf("unsupported type %q", t)
}
