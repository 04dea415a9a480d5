// Package queryset builds list queries for the repositories. It allows
// filters, ordering, and explicit column lists only: the partial-column
// deferral patterns Defer and Only are forbidden because they produce
// follow-up row fetches that have caused pathological query plans in
// hot paths. Use Values with an explicit column list instead.
package queryset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrRestricted = errors.New("use Values with an explicit column list instead [performance]")

// Builder accumulates a SELECT statement. The zero value is not usable;
// start with Select.
type Builder struct {
	table   string
	columns []string
	wheres  []string
	args    []any
	orderBy []string
	limit   int
	offset  int
	err     error
}

func Select(table string) *Builder {
	return &Builder{table: table, limit: -1, offset: -1}
}

// Values sets the explicit column list.
func (b *Builder) Values(columns ...string) *Builder {
	if b.err == nil && len(columns) == 0 {
		b.err = errors.New("queryset: Values requires at least one column")
	}
	b.columns = columns
	return b
}

// Defer is forbidden. Deferred columns trigger one extra round-trip per
// row the moment anything touches them.
func (b *Builder) Defer(...string) *Builder {
	if b.err == nil {
		b.err = ErrRestricted
	}
	return b
}

// Only is forbidden for the same reason as Defer. A column missing from
// an Only list is still loaded lazily, just later and row by row.
func (b *Builder) Only(...string) *Builder {
	if b.err == nil {
		b.err = ErrRestricted
	}
	return b
}

// Where adds a conjunct. Placeholders are written as ? and rewritten to
// positional $n parameters at build time.
func (b *Builder) Where(expr string, args ...any) *Builder {
	if b.err == nil && strings.Count(expr, "?") != len(args) {
		b.err = fmt.Errorf("queryset: %d placeholders, %d args in %q", strings.Count(expr, "?"), len(args), expr)
		return b
	}
	b.wheres = append(b.wheres, expr)
	b.args = append(b.args, args...)
	return b
}

func (b *Builder) OrderBy(exprs ...string) *Builder {
	b.orderBy = append(b.orderBy, exprs...)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// SQL renders the statement and its positional arguments.
func (b *Builder) SQL() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if b.table == "" {
		return "", nil, errors.New("queryset: no table")
	}
	if len(b.columns) == 0 {
		return "", nil, errors.New("queryset: no columns, call Values")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(b.offset))
	}

	return numberPlaceholders(sb.String()), b.args, nil
}

func numberPlaceholders(sql string) string {
	var sb strings.Builder
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
