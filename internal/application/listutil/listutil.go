package listutil

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// PageParams carries pagination parameters parsed from a request.
type PageParams struct {
	Page  int // 1-indexed page number
	Limit int // rows per page
}

// SortParams carries sorting parameters parsed from a request.
type SortParams struct {
	Sort string // column name
	Dir  string // "asc" or "desc"
}

// FilterParams carries search and filter parameters.
type FilterParams struct {
	Search  string            // free-text search query
	Filters map[string]string // exact-match filters (e.g. status=scheduled)
}

// PageInfo carries pagination metadata for rendering.
type PageInfo struct {
	Page       int // current page (1-indexed)
	Limit      int // rows per page
	Total      int // total matching rows
	TotalPages int // ceil(Total / Limit)
}

// ListParams combines all list view parameters.
type ListParams struct {
	PageParams
	SortParams
	FilterParams
}

// DefaultLimit is the default number of rows per page.
const DefaultLimit = 20

// LimitOptions are the allowed rows-per-page values.
var LimitOptions = []int{10, 20, 50, 100}

// ParsePageParams extracts page and limit from URL query values.
// PRE: none
// POST: returns valid PageParams with defaults applied
func ParsePageParams(q url.Values) PageParams {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if !slices.Contains(LimitOptions, limit) {
		limit = DefaultLimit
	}
	return PageParams{Page: page, Limit: limit}
}

// ParseSortParams extracts sort and dir from URL query values.
// PRE: none
// POST: returns SortParams; Dir is always "asc" or "desc"
func ParseSortParams(q url.Values, allowedColumns []string) SortParams {
	sort := q.Get("sort")
	dir := q.Get("dir")

	if !slices.Contains(allowedColumns, sort) {
		sort = ""
	}
	if dir != "asc" && dir != "desc" {
		dir = "asc"
	}
	return SortParams{Sort: sort, Dir: dir}
}

// ParseFilterParams extracts search and named filters from URL query values.
// PRE: filterKeys lists the allowed filter parameter names
// POST: returns FilterParams with only recognised keys
func ParseFilterParams(q url.Values, filterKeys []string) FilterParams {
	fp := FilterParams{
		Search:  strings.TrimSpace(q.Get("q")),
		Filters: make(map[string]string),
	}
	for _, key := range filterKeys {
		if v := q.Get(key); v != "" {
			fp.Filters[key] = v
		}
	}
	return fp
}

// ParseListParams parses all list parameters from URL query values.
func ParseListParams(q url.Values, allowedSortCols []string, filterKeys []string) ListParams {
	return ListParams{
		PageParams:   ParsePageParams(q),
		SortParams:   ParseSortParams(q, allowedSortCols),
		FilterParams: ParseFilterParams(q, filterKeys),
	}
}

// Encode returns the query string for the same list at page.
func (lp ListParams) Encode(page int) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	if lp.Limit != DefaultLimit && lp.Limit > 0 {
		v.Set("limit", strconv.Itoa(lp.Limit))
	}
	if lp.Sort != "" {
		v.Set("sort", lp.Sort)
		v.Set("dir", lp.Dir)
	}
	if lp.Search != "" {
		v.Set("q", lp.Search)
	}
	for k, f := range lp.Filters {
		v.Set(k, f)
	}
	return v.Encode()
}

// NewPageInfo computes pagination metadata.
// PRE: total >= 0, limit > 0, page >= 1
// POST: returns PageInfo with TotalPages computed; Page clamped to valid range
func NewPageInfo(page, limit, total int) PageInfo {
	if limit < 1 {
		limit = DefaultLimit
	}
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return PageInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Offset returns the index of the first row on the current page.
// PRE: PageInfo is valid
// POST: Returns (Page-1) * Limit
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.Limit
}

// StartRow returns the 1-indexed first row number on the current page.
// PRE: PageInfo is valid
// POST: Returns 0 if Total is 0, otherwise Offset+1
func (p PageInfo) StartRow() int {
	if p.Total == 0 {
		return 0
	}
	return p.Offset() + 1
}

// EndRow returns the 1-indexed last row number on the current page.
// PRE: PageInfo is valid
// POST: Returns min(Offset+Limit, Total)
func (p PageInfo) EndRow() int {
	return min(p.Offset()+p.Limit, p.Total)
}

// PageNumbers returns the page numbers to display in pagination controls.
// Shows at most 5 pages centered around the current page.
// PRE: PageInfo is valid
// POST: Returns slice of at most 5 page numbers centered on current page
func (p PageInfo) PageNumbers() []int {
	const maxButtons = 5
	start := max(p.Page-maxButtons/2, 1)
	end := start + maxButtons - 1
	if end > p.TotalPages {
		end = p.TotalPages
		start = max(end-maxButtons+1, 1)
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}

// ShowPagination returns true if pagination controls should be displayed.
// PRE: PageInfo is valid
// POST: Returns true if Total > Limit
func (p PageInfo) ShowPagination() bool {
	return p.Total > p.Limit
}

// Paginate slices items to the requested page. Used for endpoints that
// return every record instead of a page.
// POST: len(result) <= p.Limit
func Paginate[T any](items []T, p PageParams) ([]T, PageInfo) {
	info := NewPageInfo(p.Page, p.Limit, len(items))
	return items[info.Offset():info.EndRow()], info
}

// SortBy stably sorts items in place by the comparator registered for sp.Sort.
// Unknown columns leave the order unchanged.
func SortBy[T any](items []T, sp SortParams, columns map[string]func(a, b T) int) {
	cmp, ok := columns[sp.Sort]
	if !ok {
		return
	}
	slices.SortStableFunc(items, func(a, b T) int {
		if sp.Dir == "desc" {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
}

// Search keeps items whose text contains query, ignoring case.
// An empty query returns items unchanged.
func Search[T any](items []T, query string, text func(T) string) []T {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	var out []T
	for _, it := range items {
		if strings.Contains(strings.ToLower(text(it)), query) {
			out = append(out, it)
		}
	}
	return out
}
