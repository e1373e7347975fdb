// Package extract turns a fetched page into input points and crawlable
// links. Pages are parsed with golang.org/x/net/html, which tolerates the
// broken markup real sites serve, and walked with goquery selectors.
package extract

import (
	"bytes"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/inputpoint"
)

// Page is what one fetched document contributes to a crawl.
type Page struct {
	InputPoints []inputpoint.InputPoint
	Links       []string
}

// Options tunes extraction.
type Options struct {
	// CommonParams substitute for missing parameters on query-less URLs
	// and on forms with no named fields.
	CommonParams []string
}

func (o Options) common() []string {
	if len(o.CommonParams) == 0 {
		return defaults.CommonParams
	}
	return o.CommonParams
}

// Parse extracts the page URL's query input point, one POST input point per
// form, and every same-origin href/src link.
func Parse(pageURL *url.URL, body []byte, opts Options) (*Page, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(root)
	base := BaseURL(doc, pageURL)

	page := &Page{
		InputPoints: []inputpoint.InputPoint{QueryPoint(pageURL, opts.common())},
		Links:       Links(doc, base, pageURL),
	}
	page.InputPoints = append(page.InputPoints, Forms(doc, base, pageURL, opts.common())...)
	return page, nil
}

// QueryPoint returns the GET input point for u: its own query parameters in
// order of appearance, or the common parameters when it has none.
func QueryPoint(u *url.URL, common []string) inputpoint.InputPoint {
	ip := inputpoint.InputPoint{
		URL:    Normalize(u),
		Method: inputpoint.GET,
		Source: inputpoint.SourceQuery,
	}
	ip.Params = orderedQuery(u.RawQuery)
	if len(ip.Params) == 0 {
		ip.Params = inputpoint.ParamsFromNames(common...)
		ip.Source = inputpoint.SourceFallback
	}
	return ip
}

// orderedQuery parses a raw query keeping the first value of each name in
// the order names first appear.
func orderedQuery(raw string) inputpoint.Params {
	var params inputpoint.Params
	for _, pair := range strings.FieldsFunc(raw, func(r rune) bool { return r == '&' || r == ';' }) {
		name, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(name)
		if err != nil || name == "" {
			continue
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		params = params.Add(name, value)
	}
	return params
}

// nonInjectableTypes are input types whose values the scanner cannot
// meaningfully set.
var nonInjectableTypes = []string{"submit", "button", "image", "reset", "file"}

// Forms returns one POST input point per <form>. The action resolves
// against base; an empty action posts back to the page.
func Forms(doc *goquery.Document, base, pageURL *url.URL, common []string) []inputpoint.InputPoint {
	var points []inputpoint.InputPoint
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")
		name, _ := form.Attr("name")
		id, _ := form.Attr("id")

		target := Normalize(pageURL)
		if strings.TrimSpace(action) != "" {
			resolved, ok := Resolve(base, action)
			if !ok {
				return
			}
			target = resolved
		}

		ip := inputpoint.InputPoint{
			URL:        target,
			Method:     inputpoint.POST,
			FormName:   name,
			FormID:     id,
			FormAction: action,
			Source:     inputpoint.SourceForm,
		}
		form.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
			fieldName, _ := field.Attr("name")
			fieldType, _ := field.Attr("type")
			if slices.Contains(nonInjectableTypes, strings.ToLower(fieldType)) {
				return
			}
			value, _ := field.Attr("value")
			if goquery.NodeName(field) == "textarea" {
				value = field.Text()
			}
			ip.Params = ip.Params.Add(strings.TrimSpace(fieldName), value)
		})
		if len(ip.Params) == 0 {
			ip.Params = inputpoint.ParamsFromNames(common...)
		}
		points = append(points, ip)
	})
	return points
}

// Links returns the distinct same-origin absolute URLs referenced by any
// href or src attribute, in document order.
func Links(doc *goquery.Document, base, origin *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	add := func(raw string) {
		link, ok := Resolve(base, raw)
		if !ok {
			return
		}
		u, err := url.Parse(link)
		if err != nil || !SameOrigin(u, origin) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	doc.Find("[href], [src]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "base" {
			return
		}
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
	})
	return links
}

// BaseURL honours a <base href> element, falling back to the page URL.
func BaseURL(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return pageURL.ResolveReference(ref)
}

// Resolve makes raw absolute against base. It rejects fragments-only
// references and non-HTTP schemes.
func Resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return Normalize(u), true
}

// Normalize lowercases scheme and host, drops the fragment and a default
// port, and gives an empty path "/".
func Normalize(u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if port := n.Port(); (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
		n.Host = n.Hostname()
	}
	n.Fragment = ""
	n.RawFragment = ""
	if n.Path == "" {
		n.Path = "/"
	}
	return n.String()
}

// SameOrigin reports whether a and b share scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	default:
		return "80"
	}
}
