// Package address turns user supplied profile or post URLs into API
// addresses and builds the paginated listing and post URLs derived from them.
package address

import (
	"fmt"
	"net/url"
	"strings"

	errs "postgrab/pkg/errors"
)

// APIPrefix is the path namespace of the JSON API.
const APIPrefix = "/api/v1"

// DefaultPageSize is the number of posts returned per listing page.
const DefaultPageSize = 50

// DefaultSuffixes are the host suffixes recognized as supported sites.
var DefaultSuffixes = []string{".su"}

// Mode tells whether an address names a creator listing or one post.
type Mode int

const (
	Listing Mode = iota
	SinglePost
)

func (m Mode) String() string {
	if m == SinglePost {
		return "post"
	}
	return "listing"
}

// PageSelector selects every listing page or exactly one.
type PageSelector struct {
	single bool
	n      int
}

// All selects every page until the listing is exhausted.
func All() PageSelector { return PageSelector{} }

// One selects only page n (0-indexed).
func One(n int) PageSelector { return PageSelector{single: true, n: n} }

// Single reports whether exactly one page is selected and which.
func (p PageSelector) Single() (int, bool) { return p.n, p.single }

func (p PageSelector) String() string {
	if p.single {
		return fmt.Sprintf("page %d", p.n)
	}
	return "all pages"
}

// Address is an immutable, parsed API address. Methods that change the page
// return a modified copy.
type Address struct {
	// BaseURL is scheme://host/api/v1/<path> without query or fragment.
	BaseURL string
	// Domain is scheme://host.
	Domain   string
	Mode     Mode
	Page     PageSelector
	PageSize int
}

// Parse parses raw using DefaultSuffixes.
func Parse(raw string) (Address, error) {
	return ParseWithSuffixes(raw, DefaultSuffixes)
}

// ParseWithSuffixes parses raw, accepting hosts that contain one of suffixes.
func ParseWithSuffixes(raw string, suffixes []string) (Address, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Address{}, errs.Wrap(errs.ErrorTypeAddressParse, err, raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return Address{}, errs.New(errs.ErrorTypeAddressParse, fmt.Sprintf("%q is not an absolute URL", raw))
	}
	if !hasSuffix(u.Hostname(), suffixes) {
		return Address{}, errs.New(errs.ErrorTypeAddressParse, fmt.Sprintf("unsupported site %q", u.Host))
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	if path != APIPrefix && !strings.HasPrefix(path, APIPrefix+"/") {
		path = APIPrefix + path
	}

	domain := u.Scheme + "://" + u.Host
	addr := Address{
		BaseURL:  domain + path,
		Domain:   domain,
		Mode:     Listing,
		Page:     All(),
		PageSize: DefaultPageSize,
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "post" {
			addr.Mode = SinglePost
			break
		}
	}
	if addr.Mode == SinglePost {
		if _, err := addr.PostID(); err != nil {
			return Address{}, err
		}
	}
	return addr, nil
}

func hasSuffix(host string, suffixes []string) bool {
	for _, s := range suffixes {
		if s != "" && (strings.HasSuffix(host, s) || strings.Contains(host, s+".")) {
			return true
		}
	}
	return false
}

// WithPage returns a copy selecting page.
func (a Address) WithPage(page PageSelector) Address {
	a.Page = page
	return a
}

// NextPage returns a copy positioned on the page after the current one.
// Calling it on an All selector yields page 1.
func (a Address) NextPage() Address {
	n, _ := a.Page.Single()
	return a.WithPage(One(n + 1))
}

// ListingURL returns the listing URL for the selected page.
func (a Address) ListingURL() string {
	n, single := a.Page.Single()
	if !single {
		return a.BaseURL
	}
	size := a.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return fmt.Sprintf("%s?o=%d", a.BaseURL, n*size)
}

// PostURL returns the metadata URL of post id under this creator. A single
// post address already is that URL.
func (a Address) PostURL(id string) string {
	if a.Mode == SinglePost {
		return a.BaseURL
	}
	return a.BaseURL + "/post/" + id
}

// PostID returns the trailing non-empty path segment of a single post address.
func (a Address) PostID() (string, error) {
	if a.Mode != SinglePost {
		return "", errs.New(errs.ErrorTypeAddressParse, "address does not name a single post")
	}
	segs := strings.Split(a.BaseURL, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == "" {
			continue
		}
		if segs[i] == "post" {
			break
		}
		return segs[i], nil
	}
	return "", errs.New(errs.ErrorTypeAddressParse, "post address has no identifier")
}

// Creator returns the last path segment of a listing address, used to name
// the default output directory. For a post address it is the post id.
func (a Address) Creator() string {
	segs := strings.Split(strings.TrimRight(a.BaseURL, "/"), "/")
	return segs[len(segs)-1]
}

// WebURL strips the API namespace from an API URL, giving the address a
// person would open in a browser.
func WebURL(apiURL string) string {
	return strings.Replace(apiURL, APIPrefix+"/", "/", 1)
}
