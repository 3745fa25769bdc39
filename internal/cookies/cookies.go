// Package cookies loads the session cookies the crawler presents to the
// catalogue site.
package cookies

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

// ErrMissingCookieFile is returned when the configured cookie file does not
// exist. The crawler refuses to start without it.
var ErrMissingCookieFile = errors.New("missing cookie file")

// Load reads the cookie file at path. The file holds either a browser
// "Cookie:" header value ("a=1; b=2") or one cookie per line.
func Load(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w %q", ErrMissingCookieFile, path)
		}
		return nil, fmt.Errorf("read cookie file %q: %w", path, err)
	}
	return Parse(string(data))
}

// Parse splits content into cookie entries and parses each one. Blank
// entries are skipped.
func Parse(content string) ([]*http.Cookie, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "; ", "\n")

	var (
		cookies []*http.Cookie
		errs    []error
	)
	for i, entry := range strings.Split(content, "\n") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		cookie, err := http.ParseSetCookie(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("cookie entry %d: %w", i+1, err))
			continue
		}
		cookies = append(cookies, cookie)
	}
	if err := errors.Join(errs...); err != nil {
		return cookies, fmt.Errorf("parse cookies: %w", err)
	}
	return cookies, nil
}
