package adapter

import (
	"net/url"
	"strconv"
)

// ResolveURL resolves ref against base. Catalog pages hand out relative
// next links and product paths; items must carry absolute URLs.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// SetPageParam returns baseURL with the page query parameter set, for
// sources that paginate by page number.
func SetPageParam(baseURL, param string, page int) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
