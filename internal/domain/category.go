package domain

import (
	"time"

	"github.com/google/uuid"
)

// CategoryAttr is one key of a category's attribute vocabulary with its known
// values.
type CategoryAttr struct {
	Key    string   `json:"key" validate:"required"`
	Values []string `json:"value" validate:"required"`
}

// Category represents a product category
type Category struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image,omitempty"`
	Attrs       []CategoryAttr `json:"attrs"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ReconcileAttributes returns the category vocabulary grown by every key and
// value found in productAttrs. The input slices are not modified. Existing
// keys keep their position; new keys are appended in first-seen order with
// the first value seen for them.
func ReconcileAttributes(productAttrs []ProductAttr, categoryAttrs []CategoryAttr) []CategoryAttr {
	out := make([]CategoryAttr, len(categoryAttrs))
	index := make(map[string]int, len(categoryAttrs))
	for i, attr := range categoryAttrs {
		out[i] = CategoryAttr{Key: attr.Key, Values: append([]string(nil), attr.Values...)}
		if _, seen := index[attr.Key]; !seen {
			index[attr.Key] = i
		}
	}

	var staged []CategoryAttr
	stagedKeys := make(map[string]bool)

	for _, attr := range productAttrs {
		if i, ok := index[attr.Key]; ok {
			if !contains(out[i].Values, attr.Value) {
				out[i].Values = append(out[i].Values, attr.Value)
			}
			continue
		}
		if stagedKeys[attr.Key] {
			continue
		}
		stagedKeys[attr.Key] = true
		staged = append(staged, CategoryAttr{Key: attr.Key, Values: []string{attr.Value}})
	}

	return append(out, staged...)
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
