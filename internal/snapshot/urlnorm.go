package snapshot

import (
	"net/url"
	"strings"
)

// Query parameters that always survive canonicalization: pagination, search,
// identifiers, media timestamps and playlists. The allow-list wins over the
// block-list and the heuristic patterns below.
var canonicalParamAllow = map[string]struct{}{
	"id":      {},
	"p":       {},
	"page":    {},
	"paged":   {},
	"offset":  {},
	"start":   {},
	"q":       {},
	"query":   {},
	"search":  {},
	"s":       {},
	"v":       {},
	"t":       {},
	"list":    {},
	"episode": {},
	"chapter": {},
	"article": {},
	"post":    {},
	"story":   {},
	"item":    {},
	"thread":  {},
	"topic":   {},
	"comment": {},
	"lang":    {},
	"hl":      {},
}

// Known analytics, ads, and referral parameters stripped outright.
var canonicalParamBlock = map[string]struct{}{
	"gclid":      {},
	"gclsrc":     {},
	"wbraid":     {},
	"gbraid":     {},
	"fbclid":     {},
	"msclkid":    {},
	"dclid":      {},
	"yclid":      {},
	"twclid":     {},
	"igshid":     {},
	"igsh":       {},
	"ref":        {},
	"ref_src":    {},
	"ref_url":    {},
	"referrer":   {},
	"spm":        {},
	"scm":        {},
	"mkt_tok":    {},
	"_hsenc":     {},
	"_hsmi":      {},
	"s_kwcid":    {},
	"sc_cid":     {},
	"ncid":       {},
	"cmpid":      {},
	"share_type": {},
	"trk":        {},
}

var trackingPrefixes = []string{"utm_", "hsa_", "itm_", "fb_", "mc_"}

var trackingSuffixes = []string{"_id", "clid"}

// CanonicalURL converts a URL into its canonical string for duplicate
// detection. It returns ok=false for unparseable or non-http(s) input and
// never panics. Two URLs are duplicates iff their canonical strings match.
func CanonicalURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	} else {
		host = strings.TrimSuffix(host, ":443")
	}
	if host == "" || strings.HasPrefix(host, ":") {
		return "", false
	}

	path := canonicalPath(u.EscapedPath())
	query := canonicalQuery(u.RawQuery)

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	// The fragment is always dropped: content is assumed server-rendered.
	return b.String(), true
}

// canonicalPath strips a single trailing slash (unless the path is "/") and
// re-encodes each segment so alternate encodings of the same path collapse.
func canonicalPath(path string) string {
	if path == "" {
		return ""
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			// Keep undecodable segments untouched rather than failing.
			continue
		}
		segments[i] = url.PathEscape(decoded)
	}
	return strings.Join(segments, "/")
}

// canonicalQuery classifies every parameter as content-bearing or tracking,
// drops empty values, and emits the survivors sorted by key.
func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parsed, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	kept := url.Values{}
	for key, values := range parsed {
		if !keepParam(key) {
			continue
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			kept.Add(key, v)
		}
	}
	// Encode sorts keys lexicographically.
	return kept.Encode()
}

func keepParam(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := canonicalParamAllow[lower]; ok {
		return true
	}
	if _, ok := canonicalParamBlock[lower]; ok {
		return false
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	for _, suffix := range trackingSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}
