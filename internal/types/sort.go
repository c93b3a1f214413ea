package types

import "strings"

// SortDirection is the direction component of an order_by token.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// OrderByOption is one parsed component of the order_by display filter.
type OrderByOption struct {
	Field     string
	Direction SortDirection
}

// DefaultOrderBy returns the ordering used when a scope has no stored
// order_by preference: manual sort order ascending.
func DefaultOrderBy() []OrderByOption {
	return []OrderByOption{
		{Field: OrderByManual, Direction: SortAsc},
	}
}

// ParseOrderBy converts a comma-delimited order_by string (e.g.
// "-priority,created_at") into a slice of OrderByOption values. A leading
// dash marks descending. Empty or duplicate fields are skipped.
func ParseOrderBy(raw string) []OrderByOption {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	options := make([]OrderByOption, 0, len(parts))
	seen := make(map[string]bool)

	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}

		dir := SortAsc
		if strings.HasPrefix(token, "-") {
			dir = SortDesc
			token = strings.TrimPrefix(token, "-")
		}
		field := strings.ToLower(strings.TrimSpace(token))
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true

		options = append(options, OrderByOption{Field: field, Direction: dir})
	}

	return options
}

// EncodeOrderBy converts OrderByOption values back into the canonical wire
// string ("-priority,created_at").
func EncodeOrderBy(options []OrderByOption) string {
	if len(options) == 0 {
		return ""
	}

	tokens := make([]string, 0, len(options))
	for _, opt := range options {
		if opt.Field == "" {
			continue
		}
		if opt.Direction == SortDesc {
			tokens = append(tokens, "-"+opt.Field)
			continue
		}
		tokens = append(tokens, opt.Field)
	}
	return strings.Join(tokens, ",")
}
