package urlutil

import (
	"net/url"
	"strings"
)

// BuildFrontendURL builds a URL on the single-page frontend.
// Returns a URL like: {baseURL}/login?error=oauth_failed
// A path prefix on baseURL (e.g. https://example.com/app) is kept.
func BuildFrontendURL(baseURL, path string, query url.Values) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}
