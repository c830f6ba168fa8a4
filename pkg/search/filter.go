package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paperlane/vectorize/pkg/ddl"
	"github.com/paperlane/vectorize/pkg/verror"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpNeq Op = "!="
	OpIn  Op = "IN"
)

func parseOp(s string) (Op, error) {
	switch Op(s) {
	case OpEq, OpLt, OpLte, OpGt, OpGte, OpNeq, OpIn:
		return Op(s), nil
	default:
		return "", fmt.Errorf("%w: unsupported filter operator %q", verror.ErrFilterUnsafe, s)
	}
}

// Filter is one user-supplied predicate: column op value. Value is the
// raw JSON-decoded value (a string, number or bool, or an array of them
// for IN) until Compile parses it against the column's declared type.
type Filter struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any     `json:"value"`
}

// columnType is the minimal column metadata Compile needs: its SQL data
// type, so it can reject a filter whose value doesn't parse against it.
type columnType struct {
	Name     string
	DataType string
}

// Compile validates filters against the known source columns, parses
// each value into its column's declared type, and returns a safe SQL
// predicate fragment plus its bound parameters. Identifiers are checked
// with ddl.CheckIdentifier; values are never interpolated.
//
// The returned predicate uses placeholders starting at $(startParam),
// so callers composing a larger query can control parameter numbering.
func Compile(filters []Filter, columns []columnType, startParam int) (predicate string, args []any, err error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	byName := make(map[string]columnType, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}

	var clauses []string
	param := startParam
	for _, f := range filters {
		if err := ddl.CheckIdentifier(f.Column); err != nil {
			return "", nil, fmt.Errorf("%w: %v", verror.ErrFilterUnsafe, err)
		}
		col, ok := byName[f.Column]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown filter column %q", verror.ErrFilterUnsafe, f.Column)
		}
		op, err := parseOp(string(f.Op))
		if err != nil {
			return "", nil, err
		}

		if op == OpIn {
			values, ok := f.Value.([]any)
			if !ok || len(values) == 0 {
				return "", nil, fmt.Errorf("%w: filter %q: IN requires a non-empty array value", verror.ErrFilterUnsafe, f.Column)
			}
			parsed, err := parseValueList(col, values)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", col.Name, param))
			args = append(args, parsed)
			param++
			continue
		}

		pv, err := parseValue(col, f.Value)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", col.Name, op, param))
		args = append(args, pv)
		param++
	}

	return strings.Join(clauses, " AND "), args, nil
}

// parseValueList parses every element of values into col's declared type
// and returns a concrete, uniformly-typed slice, since pgx can only infer
// an array OID from a concrete slice type like []int64, never []any.
func parseValueList(col columnType, values []any) (any, error) {
	parsed := make([]any, len(values))
	for i, v := range values {
		pv, err := parseValue(col, v)
		if err != nil {
			return nil, err
		}
		parsed[i] = pv
	}

	switch col.DataType {
	case "bigint", "integer", "smallint":
		out := make([]int64, len(parsed))
		for i, v := range parsed {
			out[i] = v.(int64)
		}
		return out, nil
	case "double precision", "real", "numeric":
		out := make([]float64, len(parsed))
		for i, v := range parsed {
			out[i] = v.(float64)
		}
		return out, nil
	case "boolean":
		out := make([]bool, len(parsed))
		for i, v := range parsed {
			out[i] = v.(bool)
		}
		return out, nil
	case "timestamp with time zone", "timestamp without time zone", "date":
		out := make([]time.Time, len(parsed))
		for i, v := range parsed {
			out[i] = v.(time.Time)
		}
		return out, nil
	default:
		out := make([]string, len(parsed))
		for i, v := range parsed {
			out[i] = v.(string)
		}
		return out, nil
	}
}

// parseValue parses a filter value (typically a JSON-decoded string,
// float64, or bool) into the Go type matching col's declared SQL type,
// rejecting anything that doesn't parse.
func parseValue(col columnType, v any) (any, error) {
	s, isString := v.(string)

	switch col.DataType {
	case "bigint", "integer", "smallint":
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: filter %q: %q is not an integer", verror.ErrFilterUnsafe, col.Name, n)
			}
			return i, nil
		}
		return nil, fmt.Errorf("%w: filter %q: expected an integer", verror.ErrFilterUnsafe, col.Name)
	case "double precision", "real", "numeric":
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: filter %q: %q is not a number", verror.ErrFilterUnsafe, col.Name, n)
			}
			return f, nil
		}
		return nil, fmt.Errorf("%w: filter %q: expected a number", verror.ErrFilterUnsafe, col.Name)
	case "boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if isString {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("%w: filter %q: %q is not a boolean", verror.ErrFilterUnsafe, col.Name, s)
			}
			return b, nil
		}
		return nil, fmt.Errorf("%w: filter %q: expected a boolean", verror.ErrFilterUnsafe, col.Name)
	case "timestamp with time zone", "timestamp without time zone", "date":
		if !isString {
			return nil, fmt.Errorf("%w: filter %q: expected a timestamp string", verror.ErrFilterUnsafe, col.Name)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %q is not RFC3339", verror.ErrFilterUnsafe, col.Name, s)
		}
		return t, nil
	default:
		// Every other type (text, varchar, uuid, ...) binds the value as a
		// parameter, so it never touches the SQL string regardless of its
		// contents; only identifiers go through CheckIdentifier.
		if !isString {
			return nil, fmt.Errorf("%w: filter %q: expected a string", verror.ErrFilterUnsafe, col.Name)
		}
		return s, nil
	}
}
