package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"storefront/internal/apperror"
)

// SortField orders a listing by one API field
type SortField struct {
	Field string
	Desc  bool
}

// ListOptions carries ordering and paging for list queries
type ListOptions struct {
	Sort   []SortField
	Offset int
	Limit  int
}

// argList accumulates positional query arguments
type argList struct {
	values []any
}

func (a *argList) add(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// orderBy renders an ORDER BY clause. Fields are resolved through columns so
// only whitelisted API names ever reach the SQL text. tiebreak keeps paging
// stable across equal sort keys.
func orderBy(sort []SortField, columns map[string]string, fallback []SortField, tiebreak string) (string, error) {
	if len(sort) == 0 {
		sort = fallback
	}

	parts := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		column, ok := columns[s.Field]
		if !ok {
			return "", apperror.Validation("Invalid sort field",
				apperror.FieldError{Field: "sort", Message: fmt.Sprintf("cannot sort by %q", s.Field)})
		}
		direction := "ASC"
		if s.Desc {
			direction = "DESC"
		}
		parts = append(parts, column+" "+direction)
	}
	parts = append(parts, tiebreak+" ASC")
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

func limitOffset(args *argList, opts ListOptions) string {
	if opts.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %s OFFSET %s", args.add(opts.Limit), args.add(opts.Offset))
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

// jsonArg encodes v for a JSONB parameter, mapping nil slices to []
func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func scanJSON(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}
