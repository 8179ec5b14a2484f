package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/repository"
)

const (
	DefaultPageLimit   = 16
	DefaultReviewLimit = 10
)

// ListParams carries the paging and ordering query parameters shared by list
// endpoints. Page is zero when the client did not ask for a page.
type ListParams struct {
	Page  int
	Limit int
	Sort  string
}

// ParseListParams reads page, limit and sort from q
func ParseListParams(q url.Values) (ListParams, error) {
	var p ListParams
	var err error
	if p.Page, err = positiveInt(q, "page"); err != nil {
		return p, err
	}
	if p.Limit, err = positiveInt(q, "limit"); err != nil {
		return p, err
	}
	p.Sort = q.Get("sort")
	return p, nil
}

func positiveInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.Validation("Invalid query parameter",
			apperror.FieldError{Field: key, Message: "must be a positive integer"})
	}
	return n, nil
}

// options converts p into repository options, filling in the default limit
func (p ListParams) options(defaultLimit int) repository.ListOptions {
	page := p.Page
	if page < 1 {
		page = 1
	}
	limit := p.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	return repository.ListOptions{
		Sort:   ParseSort(p.Sort),
		Offset: (page - 1) * limit,
		Limit:  limit,
	}
}

// checkPage rejects an explicitly requested page that starts past the end
func (p ListParams) checkPage(opts repository.ListOptions, total int) error {
	if p.Page > 0 && opts.Offset > total {
		return apperror.NotFound("This page does not exist")
	}
	return nil
}

// ParseSort turns "-price,name" into sort fields. A leading '-' sorts
// descending. Empty entries are skipped.
func ParseSort(raw string) []repository.SortField {
	var fields []repository.SortField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			fields = append(fields, repository.SortField{Field: part[1:], Desc: true})
			continue
		}
		fields = append(fields, repository.SortField{Field: strings.TrimPrefix(part, "+")})
	}
	return fields
}

// ProductQuery is a parsed product listing request
type ProductQuery struct {
	ListParams
	Filter repository.ProductFilter
}

// listing keys that never act as filters
var reservedProductKeys = map[string]bool{
	"page": true, "sort": true, "limit": true, "fields": true, "attributes": true, "term": true,
}

var comparisonKey = regexp.MustCompile(`^([A-Za-z]+)\[(gte|gt|lte|lt)\]$`)

// ParseProductQuery parses the product listing query string.
//
//	price[gte]=10&price[lt]=50   numeric comparisons
//	count=3                      numeric equality
//	category=phones&name=X       exact matches
//	attributes=RAM-8GB-16GB,color-red
//	term=pho                     case-insensitive name search
//
// Keys that name no filterable field are ignored.
func ParseProductQuery(q url.Values) (ProductQuery, error) {
	params, err := ParseListParams(q)
	if err != nil {
		return ProductQuery{}, err
	}
	pq := ProductQuery{ListParams: params}

	for key, values := range q {
		if reservedProductKeys[key] || len(values) == 0 {
			continue
		}
		value := values[0]

		field, op := key, repository.OpEq
		if m := comparisonKey.FindStringSubmatch(key); m != nil {
			field, op = m[1], repository.NumericOp(m[2])
		}

		switch {
		case field == "category" && op == repository.OpEq:
			pq.Filter.Category = value
		case field == "name" && op == repository.OpEq:
			pq.Filter.Name = value
		case repository.IsNumericProductField(field):
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return ProductQuery{}, apperror.Validation("Invalid query parameter",
					apperror.FieldError{Field: key, Message: fmt.Sprintf("%q is not a number", value)})
			}
			pq.Filter.Numeric = append(pq.Filter.Numeric, repository.NumericFilter{Field: field, Op: op, Value: n})
		}
	}

	pq.Filter.Term = strings.TrimSpace(q.Get("term"))

	facets, err := ParseAttributeFacets(q.Get("attributes"))
	if err != nil {
		return ProductQuery{}, err
	}
	pq.Filter.Attributes = facets
	return pq, nil
}

// ParseAttributeFacets parses "RAM-15GB-16GB,color-red-black". Each
// comma-separated group is a key followed by one or more accepted values.
func ParseAttributeFacets(raw string) ([]repository.AttributeFacet, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var facets []repository.AttributeFacet
	for _, group := range strings.Split(raw, ",") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		parts := strings.Split(group, "-")
		if len(parts) < 2 || parts[0] == "" {
			return nil, apperror.Validation("Invalid query parameter",
				apperror.FieldError{Field: "attributes", Message: fmt.Sprintf("%q must look like key-value", group)})
		}
		values := make([]string, 0, len(parts)-1)
		for _, v := range parts[1:] {
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, apperror.Validation("Invalid query parameter",
				apperror.FieldError{Field: "attributes", Message: fmt.Sprintf("%q has no values", group)})
		}
		facets = append(facets, repository.AttributeFacet{Key: parts[0], Values: values})
	}
	return facets, nil
}
