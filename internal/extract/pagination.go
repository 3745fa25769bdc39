package extract

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	paginationListSelector = ".listing-container .listing-footer .b-pagination ul.b-pagination-list"
	paginationItemSelector = "li.b-pagination-item"
	paginationLinkSelector = "a.b-pagination-item"
)

// MaxPage returns the number of the last catalogue page advertised by the
// pagination footer. The final item is the "Next" button, so the last real
// page is the second to last item.
func MaxPage(body string) (int, error) {
	doc, err := parseDocument(StagePagination, body)
	if err != nil {
		return 0, err
	}
	list := doc.Find(paginationListSelector).First()
	if list.Length() == 0 {
		return 0, missing(StagePagination, "list")
	}
	items := list.Find(paginationItemSelector)
	if items.Length() < 2 {
		return 0, &Error{
			Stage: StagePagination,
			Field: "items",
			Err:   fmt.Errorf("%w: need at least 2 pagination items, found %d", ErrNoSuchElement, items.Length()),
		}
	}
	label, ok := text(items.Eq(items.Length()-2), paginationLinkSelector)
	if !ok {
		return 0, missing(StagePagination, "last page label")
	}
	page, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil {
		return 0, &Error{Stage: StagePagination, Field: "last page label", Err: err}
	}
	return page, nil
}
