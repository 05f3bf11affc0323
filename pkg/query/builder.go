package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SortField is one ORDER BY term, named by its view field.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields reads a comma-separated sort string such as
// "Status,-CreatedAt", where a leading "-" sorts descending.
func ParseSortFields(s string) []SortField {
	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}

// Builder accumulates WHERE conditions and ordering against a projection.
// Placeholders are numbered as conditions are added, so a Builder yields the
// same arguments for Select, Count, and Page.
type Builder struct {
	projection  *ProjectionMap
	where       []string
	args        []any
	order       []SortField
	defaultSort []SortField
}

// NewBuilder starts a query over projection ordered by defaultSort unless
// OrderBy supplies usable fields.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{
		projection:  projection,
		defaultSort: defaultSort,
	}
}

// WhereEquals adds field = value. Nil values and unprojected fields are skipped.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	return b.compare(field, "=", value)
}

// WhereRange adds from <= field < to, skipping whichever bound is nil.
func (b *Builder) WhereRange(field string, from, to any) *Builder {
	return b.compare(field, ">=", from).compare(field, "<", to)
}

// WhereSearch matches search as a case-insensitive substring of any of the
// fields. LIKE wildcards in search match literally.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" {
		return b
	}

	pattern := "%" + escapeLike(*search) + "%"
	var clauses []string
	for _, field := range fields {
		col, ok := b.projection.Column(field)
		if !ok {
			continue
		}
		clauses = append(clauses, col+" ILIKE "+b.bind(pattern))
	}

	if len(clauses) > 0 {
		b.where = append(b.where, "("+strings.Join(clauses, " OR ")+")")
	}
	return b
}

// OrderBy replaces the default ordering. Fields outside the projection are
// dropped; if none remain the default ordering applies.
func (b *Builder) OrderBy(fields []SortField) *Builder {
	b.order = fields
	return b
}

// Select returns the filtered, ordered query.
func (b *Builder) Select() (string, []any) {
	return b.selectFrom() + b.whereClause() + b.orderClause(), b.args
}

// Count returns a COUNT(*) over the filtered rows.
func (b *Builder) Count() (string, []any) {
	return "SELECT COUNT(*) FROM " + b.projection.Table() + b.whereClause(), b.args
}

// Page returns the filtered, ordered query limited to one 1-based page.
func (b *Builder) Page(page, pageSize int) (string, []any) {
	offset := (page - 1) * pageSize
	sql := fmt.Sprintf("%s%s%s LIMIT %d OFFSET %d",
		b.selectFrom(), b.whereClause(), b.orderClause(), pageSize, offset)
	return sql, b.args
}

// Single returns the row whose keyField equals key. Other conditions on the
// builder are ignored.
func (b *Builder) Single(keyField string, key any) (string, []any) {
	col, ok := b.projection.Column(keyField)
	if !ok {
		panic(fmt.Sprintf("query: key field %s is not projected", keyField))
	}
	return b.selectFrom() + " WHERE " + col + " = $1", []any{key}
}

func (b *Builder) compare(field, op string, value any) *Builder {
	if isNil(value) {
		return b
	}
	col, ok := b.projection.Column(field)
	if !ok {
		return b
	}
	b.where = append(b.where, col+" "+op+" "+b.bind(value))
	return b
}

// bind records value and returns its placeholder.
func (b *Builder) bind(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *Builder) selectFrom() string {
	return "SELECT " + b.projection.Columns() + " FROM " + b.projection.Table()
}

func (b *Builder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func (b *Builder) orderClause() string {
	terms := b.orderTerms(b.order)
	if len(terms) == 0 {
		terms = b.orderTerms(b.defaultSort)
	}
	if len(terms) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func (b *Builder) orderTerms(fields []SortField) []string {
	var terms []string
	for _, f := range fields {
		col, ok := b.projection.Column(f.Field)
		if !ok {
			continue
		}
		if f.Descending {
			terms = append(terms, col+" DESC")
		} else {
			terms = append(terms, col+" ASC")
		}
	}
	return terms
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
