package activitypub

import (
	"net/url"
	"strings"
)

// canonicalHost lowercases a URL's host and strips the default port
// for its scheme, so "https://Example.com:443/x" and
// "https://example.com/y/" compare equal on host.
func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Host)
	switch u.Scheme {
	case "https":
		host = strings.TrimSuffix(host, ":443")
	case "http":
		host = strings.TrimSuffix(host, ":80")
	}
	return host
}

// CheckUrlsSameHost reports whether two URLs share a host. Scheme,
// path, query and trailing slashes are ignored; default ports are
// normalized away. Unparseable or host-less URLs never match.
func CheckUrlsSameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	if ua.Host == "" || ub.Host == "" {
		return false
	}
	return canonicalHost(ua) == canonicalHost(ub)
}

// IsAbsoluteUrl reports whether s is a well-formed absolute http(s) URL.
func IsAbsoluteUrl(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
