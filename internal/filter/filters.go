package filter

import (
	"github.com/siahsang/notes/internal/validator"
)

type Filter struct {
	Limit  int64
	Offset int64
}

// Metadata describes a page of a published listing.
type Metadata struct {
	TotalCount  int64   `json:"totalCount"`
	CurrentPage int64   `json:"currentPage"`
	LastPage    int64   `json:"lastPage"`
	PageRange   []int64 `json:"pageRange"`
}

// Ellipsis marks a gap in PageRange.
const Ellipsis int64 = 0

const (
	pagesOnEachSide = 2
	pagesOnEnds     = 1
)

func NewFilter(limit, offset int64) Filter {
	return Filter{
		Limit:  limit,
		Offset: offset,
	}
}

func ValidateFilters(filters Filter, v *validator.Validator) {
	v.Check(filters.Limit > 0, "limit", "must be greater than 0")
	v.Check(filters.Limit <= 100, "limit", "must be a maximum of 100")
	v.Check(filters.Offset >= 0, "offset", "must be greater than or equal to 0")
	v.Check(filters.Offset <= 10_000_000, "offset", "must be a maximum of 10_000_000")
}

func CalculateMetadata(totalCount int64, filters Filter) Metadata {
	if totalCount == 0 || filters.Limit <= 0 {
		return Metadata{PageRange: []int64{}}
	}

	current := filters.Offset/filters.Limit + 1
	last := (totalCount + filters.Limit - 1) / filters.Limit

	return Metadata{
		TotalCount:  totalCount,
		CurrentPage: current,
		LastPage:    last,
		PageRange:   PageRange(current, last),
	}
}

// PageRange lists the page numbers to show around current, keeping two pages on
// each side of it and one at each end. Gaps are marked with Ellipsis.
func PageRange(current, last int64) []int64 {
	if last <= 0 {
		return []int64{}
	}
	current = min(max(current, 1), last)

	// no gap is needed when everything fits
	if last <= (pagesOnEachSide+pagesOnEnds)*2+1 {
		return sequence(1, last)
	}

	var pages []int64
	if current > pagesOnEachSide+pagesOnEnds+1 {
		pages = append(pages, sequence(1, pagesOnEnds)...)
		pages = append(pages, Ellipsis)
		pages = append(pages, sequence(current-pagesOnEachSide, current)...)
	} else {
		pages = append(pages, sequence(1, current)...)
	}

	if current < last-pagesOnEachSide-pagesOnEnds {
		pages = append(pages, sequence(current+1, current+pagesOnEachSide)...)
		pages = append(pages, Ellipsis)
		pages = append(pages, sequence(last-pagesOnEnds+1, last)...)
	} else {
		pages = append(pages, sequence(current+1, last)...)
	}

	return pages
}

func sequence(from, to int64) []int64 {
	if to < from {
		return nil
	}
	pages := make([]int64, 0, to-from+1)
	for p := from; p <= to; p++ {
		pages = append(pages, p)
	}
	return pages
}
