package extract

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	listingSelector    = ".listing-body > ul.listing"
	listingRowSelector = ".info"
)

// Listing is one row of the public catalogue.
type Listing struct {
	Name       string `json:"name"`
	SourceBook string `json:"source_book"`
	// URL is the site-relative path of the creature's detail page.
	URL string `json:"url"`
	// ChallengeRating is nil for fractional ratings such as "1/4".
	ChallengeRating *int   `json:"challenge_rating,omitempty"`
	Kind            string `json:"kind"`
	Size            string `json:"size"`
}

// Slug returns the final path segment of the listing URL, e.g.
// "16762-aboleth".
func (l Listing) Slug() string {
	p := l.URL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// ParseListings extracts every creature row from a listing page. Rows that
// cannot be parsed are skipped and reported through the joined error; the
// good rows are still returned.
func ParseListings(body string) ([]Listing, error) {
	doc, err := parseDocument(StageListing, body)
	if err != nil {
		return nil, err
	}
	list := doc.Find(listingSelector).First()
	if list.Length() == 0 {
		return nil, missing(StageListing, "list")
	}

	var (
		listings []Listing
		errs     []error
	)
	list.Find(listingRowSelector).Each(func(i int, row *goquery.Selection) {
		listing, err := parseRow(row)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			return
		}
		listings = append(listings, listing)
	})
	return listings, errors.Join(errs...)
}

func parseRow(row *goquery.Selection) (Listing, error) {
	title := row.Find(".monster-name").First()
	if title.Length() == 0 {
		return Listing{}, missing(StageListing, "title block")
	}
	link := title.Find("span.name > a.link").First()
	if link.Length() == 0 {
		return Listing{}, missing(StageListing, "name link")
	}
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return Listing{}, missing(StageListing, "name href")
	}
	source, ok := text(title, "span.source")
	if !ok {
		return Listing{}, missing(StageListing, "source book")
	}
	kind, ok := text(row, ".monster-type > span.type")
	if !ok {
		return Listing{}, missing(StageListing, "type")
	}
	size, ok := text(row, ".monster-size > span")
	if !ok {
		return Listing{}, missing(StageListing, "size")
	}

	listing := Listing{
		Name:       strings.TrimSpace(link.Text()),
		SourceBook: source,
		URL:        href,
		Kind:       kind,
		Size:       size,
	}
	if cr, ok := text(row, ".monster-challenge > span"); ok {
		if v, err := strconv.Atoi(cr); err == nil {
			listing.ChallengeRating = &v
		}
	}
	return listing, nil
}
