package neosession

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

// DefaultDepth is the traversal depth used when a load names none: the
// entity itself plus its direct neighbours.
const DefaultDepth = 1

// SortOrder is an ordered list of property sort criteria applied to the
// root entities of a load.
type SortOrder struct {
	fields []graph.SortField
}

// NewSortOrder creates an empty sort order.
func NewSortOrder() *SortOrder {
	return &SortOrder{}
}

// Add appends ascending criteria for each of props.
func (o *SortOrder) Add(props ...string) *SortOrder {
	for _, p := range props {
		o.fields = append(o.fields, graph.SortField{Property: p})
	}
	return o
}

// Desc appends descending criteria for each of props.
func (o *SortOrder) Desc(props ...string) *SortOrder {
	for _, p := range props {
		o.fields = append(o.fields, graph.SortField{Property: p, Descending: true})
	}
	return o
}

// Fields returns a copy of the criteria in order.
func (o *SortOrder) Fields() []graph.SortField {
	if o == nil || len(o.fields) == 0 {
		return nil
	}
	return append([]graph.SortField(nil), o.fields...)
}

// Pagination windows the sorted roots.
type Pagination struct {
	Offset int
	Limit  int
}

// Page returns the window for the zero-based page number of the given size.
func Page(number, size int) Pagination {
	return Pagination{Offset: number * size, Limit: size}
}

// Query is the normalized description of one load. Two loads that mean the
// same thing produce equal queries, whichever options were spelled out.
type Query struct {
	Label      string
	IDs        []string
	Sort       []graph.SortField
	Pagination *Pagination
	Depth      int
}

type queryOptions struct {
	depth      int
	sort       *SortOrder
	pagination *Pagination
}

// QueryOption customizes a load.
type QueryOption func(*queryOptions)

// WithDepth sets the traversal depth. Use -1 for the full reachable graph.
func WithDepth(depth int) QueryOption {
	return func(o *queryOptions) {
		o.depth = depth
	}
}

// WithSort orders the root entities. A nil or empty order means unsorted.
func WithSort(order *SortOrder) QueryOption {
	return func(o *queryOptions) {
		o.sort = order
	}
}

// WithPagination windows the root entities.
func WithPagination(p Pagination) QueryOption {
	return func(o *queryOptions) {
		o.pagination = &p
	}
}

// NewQuery validates and normalizes a load of label entities. Duplicate ids
// are dropped, keeping the first occurrence. An empty id list selects every
// entity of the label. All violations are reported together, wrapped in
// ErrInvalidQuery.
func NewQuery(label string, ids []string, opts ...QueryOption) (Query, error) {
	o := queryOptions{depth: DefaultDepth}
	for _, opt := range opts {
		opt(&o)
	}

	var errs error
	if label == "" {
		errs = multierr.Append(errs, errors.New("label must not be empty"))
	}
	if o.depth < graph.Unbounded {
		errs = multierr.Append(errs, fmt.Errorf("depth %d is below %d", o.depth, graph.Unbounded))
	}
	sortFields := o.sort.Fields()
	for i, f := range sortFields {
		if f.Property == "" {
			errs = multierr.Append(errs, fmt.Errorf("sort criterion %d has no property", i))
		}
	}
	if p := o.pagination; p != nil {
		if p.Offset < 0 {
			errs = multierr.Append(errs, fmt.Errorf("offset %d is negative", p.Offset))
		}
		if p.Limit < 0 {
			errs = multierr.Append(errs, fmt.Errorf("limit %d is negative", p.Limit))
		}
	}
	if errs != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, errs)
	}

	return Query{
		Label:      label,
		IDs:        dedupe(ids),
		Sort:       sortFields,
		Pagination: o.pagination,
		Depth:      o.depth,
	}, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FetchRequest translates the query for the backing store.
func (q Query) FetchRequest() graph.FetchRequest {
	req := graph.FetchRequest{
		Label: q.Label,
		IDs:   q.IDs,
		Depth: q.Depth,
		Sort:  q.Sort,
	}
	if q.Pagination != nil {
		limit := q.Pagination.Limit
		req.Skip = q.Pagination.Offset
		req.Limit = &limit
	}
	return req
}
