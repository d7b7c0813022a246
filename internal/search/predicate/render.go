// internal/search/predicate/render.go
package predicate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrInvalidColumn   = errors.New("invalid column name")
	ErrInvalidOperator = errors.New("invalid operator")
	ErrPlaceholderArgs = errors.New("placeholder count does not match args")
	ErrUnsupportedNode = errors.New("unsupported predicate node")
)

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// QuoteColumn validates a column name against the allowed identifier shape and
// returns it quoted for Postgres.
func QuoteColumn(column string) (string, error) {
	if !columnPattern.MatchString(column) {
		return "", fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	return pq.QuoteIdentifier(column), nil
}

// EscapeLike escapes LIKE metacharacters so term matches literally under the
// default backslash escape.
func EscapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// Render converts n to a SQL boolean expression with Postgres positional
// placeholders starting at $start. Values are always bound, never inlined.
func Render(n Node, start int) (string, []interface{}, error) {
	if start < 1 {
		start = 1
	}
	r := &renderer{next: start}
	sql, err := r.render(n)
	if err != nil {
		return "", nil, err
	}
	return sql, r.args, nil
}

type renderer struct {
	next int
	args []interface{}
}

func (r *renderer) bind(v interface{}) string {
	r.args = append(r.args, v)
	p := fmt.Sprintf("$%d", r.next)
	r.next++
	return p
}

func (r *renderer) render(n Node) (string, error) {
	switch v := n.(type) {
	case nil:
		return "TRUE", nil
	case Equals:
		col, err := QuoteColumn(v.Column)
		if err != nil {
			return "", err
		}
		if v.Fold {
			return fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, r.bind(v.Value)), nil
		}
		return fmt.Sprintf("%s = %s", col, r.bind(v.Value)), nil
	case InList:
		col, err := QuoteColumn(v.Column)
		if err != nil {
			return "", err
		}
		if len(v.Values) == 0 {
			return "FALSE", nil
		}
		ph := make([]string, len(v.Values))
		for i, val := range v.Values {
			ph[i] = r.bind(val)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")), nil
	case Range:
		col, err := QuoteColumn(v.Column)
		if err != nil {
			return "", err
		}
		switch {
		case v.Min != nil && v.Max != nil:
			return fmt.Sprintf("%s BETWEEN %s AND %s", col, r.bind(v.Min), r.bind(v.Max)), nil
		case v.Min != nil:
			return fmt.Sprintf("%s >= %s", col, r.bind(v.Min)), nil
		case v.Max != nil:
			return fmt.Sprintf("%s <= %s", col, r.bind(v.Max)), nil
		default:
			return "TRUE", nil
		}
	case Compare:
		col, err := QuoteColumn(v.Column)
		if err != nil {
			return "", err
		}
		if !validOperators[v.Op] {
			return "", fmt.Errorf("%w: %q", ErrInvalidOperator, v.Op)
		}
		return fmt.Sprintf("%s %s %s", col, v.Op, r.bind(v.Value)), nil
	case ColumnCompare:
		left, err := QuoteColumn(v.Left)
		if err != nil {
			return "", err
		}
		right, err := QuoteColumn(v.Right)
		if err != nil {
			return "", err
		}
		if !validOperators[v.Op] {
			return "", fmt.Errorf("%w: %q", ErrInvalidOperator, v.Op)
		}
		return fmt.Sprintf("%s %s %s", left, v.Op, right), nil
	case Like:
		col, err := QuoteColumn(v.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s ILIKE %s", col, r.bind("%"+EscapeLike(v.Term)+"%")), nil
	case NotEmpty:
		col, err := QuoteColumn(v.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", col, col), nil
	case And:
		return r.join(v.Nodes, " AND ", "TRUE", KindOr)
	case Or:
		return r.join(v.Nodes, " OR ", "FALSE", KindAnd)
	case Raw:
		return r.raw(v)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedNode, n)
	}
}

// join renders children with sep. Children of kind wrapKind, and raw
// fragments, are parenthesised.
func (r *renderer) join(nodes []Node, sep, empty string, wrapKind Kind) (string, error) {
	if len(nodes) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(nodes))
	for _, c := range nodes {
		s, err := r.render(c)
		if err != nil {
			return "", err
		}
		if c != nil && c.Kind() == wrapKind {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func (r *renderer) raw(v Raw) (string, error) {
	if strings.Count(v.Expr, "?") != len(v.Args) {
		return "", fmt.Errorf("%w: %d placeholders, %d args", ErrPlaceholderArgs, strings.Count(v.Expr, "?"), len(v.Args))
	}
	var b strings.Builder
	b.WriteByte('(')
	i := 0
	for _, ch := range v.Expr {
		if ch == '?' {
			b.WriteString(r.bind(v.Args[i]))
			i++
			continue
		}
		b.WriteRune(ch)
	}
	b.WriteByte(')')
	return b.String(), nil
}
