// Package extract pulls structured data out of catalogue listing pages and
// creature detail pages.
package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extraction stages reported in Error.Stage.
const (
	StagePagination = "pagination"
	StageListing    = "listing"
	StageCreature   = "creature"
)

// ErrNoSuchElement reports that an expected element or attribute is missing.
var ErrNoSuchElement = errors.New("no such element")

// Error describes a failure to extract one field from a page.
type Error struct {
	Stage string
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s %s: %v", e.Stage, e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func missing(stage, field string) error {
	return &Error{Stage: stage, Field: field, Err: ErrNoSuchElement}
}

func parseDocument(stage, body string) (*goquery.Document, error) {
	return parseReader(stage, strings.NewReader(body))
}

func parseReader(stage string, r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &Error{Stage: stage, Field: "document", Err: err}
	}
	return doc, nil
}

// text returns the trimmed text of the first match of selector under s.
func text(s *goquery.Selection, selector string) (string, bool) {
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(found.Text()), true
}
