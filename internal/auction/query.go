package auction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jensholdgaard/auctionhouse/internal/store"
)

var ErrInvalidSort = errors.New("invalid sort order")

// Page sizes used when the caller gives none or too many.
const (
	DefaultPageSize = 28
	MaxPageSize     = 100
)

// SortOrder orders active listings.
type SortOrder string

const (
	SortNewest    SortOrder = "NEWEST"
	SortPriceAsc  SortOrder = "PRICE_ASC"
	SortPriceDesc SortOrder = "PRICE_DESC"
	SortTimeLeft  SortOrder = "TIME_LEFT"
)

// ParseSortOrder parses s case-insensitively. An empty string is TIME_LEFT.
func ParseSortOrder(s string) (SortOrder, error) {
	o := SortOrder(strings.ToUpper(strings.TrimSpace(s)))
	switch o {
	case "":
		return SortTimeLeft, nil
	case SortNewest, SortPriceAsc, SortPriceDesc, SortTimeLeft:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSort, s)
}

func (o SortOrder) compare(a, b Auction) int {
	switch o {
	case SortNewest:
		return b.CreatedAt.Compare(a.CreatedAt)
	case SortPriceAsc:
		return a.Price.Cmp(b.Price)
	case SortPriceDesc:
		return b.Price.Cmp(a.Price)
	default:
		return a.EndAt.Compare(b.EndAt)
	}
}

// Filter narrows the active listings. Listing pages and counts apply the
// same Filter so page totals stay consistent.
type Filter struct {
	Category Category
	Search   string
}

// normalize canonicalizes the category, rejecting unknown values.
func (f Filter) normalize() (Filter, error) {
	category, err := ParseCategory(string(f.Category))
	if err != nil {
		return Filter{}, err
	}
	f.Category = category
	return f, nil
}

func (f Filter) matcher() func(Auction) bool {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	return func(a Auction) bool {
		if !a.Active() || !f.Category.Matches(a.Item.Type) {
			return false
		}
		if search == "" {
			return true
		}
		return strings.Contains(strings.ToLower(a.Item.Type), search) ||
			strings.Contains(strings.ToLower(a.Item.DisplayName), search)
	}
}

// ListQuery selects one page of active listings. Page is 1-based.
type ListQuery struct {
	Filter
	Sort SortOrder
	Page int
	Size int
}

// Page is one page of results. HasNext is found by reading one extra row.
type Page struct {
	Auctions []Auction `json:"auctions"`
	Page     int       `json:"page"`
	Size     int       `json:"size"`
	HasNext  bool      `json:"has_next"`
}

// pageOf runs q for a 1-based page, asking for one record more than size.
func pageOf(c *store.Collection[Auction], filter func(Auction) bool, compare func(a, b Auction) int, page, size int) Page {
	page, size, offset := store.Window(page, size, DefaultPageSize, MaxPageSize)
	rows := c.Query(store.Query[Auction]{
		Filter:  filter,
		Compare: compare,
		Offset:  offset,
		Limit:   size + 1,
	})
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	return Page{Auctions: rows, Page: page, Size: size, HasNext: hasNext}
}

func newestFirst(a, b Auction) int { return b.CreatedAt.Compare(a.CreatedAt) }
