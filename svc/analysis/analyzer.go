package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Analyzer inspects a page for responsiveness problems.
type Analyzer interface {
	Analyze(ctx context.Context, pageURL string) (*Report, error)
}

// Report is the result of one analysis.
type Report struct {
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	Title       string    `json:"title,omitempty"`
	HasViewport bool      `json:"has_viewport"`
	Viewport    string    `json:"viewport,omitempty"`
	Issues      []string  `json:"issues"`
	Responsive  bool      `json:"responsive"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// Issue codes reported in Report.Issues.
const (
	IssueMissingViewport   = "missing_viewport"
	IssueFixedWidth        = "fixed_width_viewport"
	IssueZoomDisabled      = "zoom_disabled"
	IssueInitialScale      = "initial_scale_not_one"
	IssueMissingMediaQuery = "no_media_queries"
)

// ViewportAnalyzer fetches a page and checks its viewport meta tag and
// inline styles.
type ViewportAnalyzer struct {
	client   *http.Client
	maxBytes int64
	now      func() time.Time
}

// AnalyzerOption configures a ViewportAnalyzer instance.
type AnalyzerOption func(*ViewportAnalyzer)

// WithHTTPClient replaces the default client, which refuses non-public
// addresses. Tests use it to reach local servers.
func WithHTTPClient(c *http.Client) AnalyzerOption {
	return func(a *ViewportAnalyzer) {
		if c != nil {
			a.client = c
		}
	}
}

// WithMaxBytes limits how much of a page is read.
func WithMaxBytes(n int64) AnalyzerOption {
	return func(a *ViewportAnalyzer) {
		if n > 0 {
			a.maxBytes = n
		}
	}
}

// NewViewportAnalyzer creates an analyzer that only reaches public hosts.
func NewViewportAnalyzer(opts ...AnalyzerOption) *ViewportAnalyzer {
	a := &ViewportAnalyzer{
		client:   NewPublicClient(15 * time.Second),
		maxBytes: 2 << 20,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Analyze fetches pageURL and inspects its head.
func (a *ViewportAnalyzer) Analyze(ctx context.Context, pageURL string) (*Report, error) {
	u, err := ValidateURL(pageURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "viewportly/1.0 (+https://viewportly.app)")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrForbiddenAddress) || errors.Is(err, ErrInvalidURL) {
			return nil, errors.Join(ErrInvalidURL, err)
		}
		return nil, errors.Join(ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || (mt != "text/html" && mt != "application/xhtml+xml") {
			return nil, fmt.Errorf("%w: %s", ErrNotHTML, ct)
		}
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, a.maxBytes))
	if err != nil {
		return nil, errors.Join(ErrParseFailure, err)
	}

	rep := &Report{URL: u.String(), StatusCode: resp.StatusCode, AnalyzedAt: a.now().UTC()}
	inspect(doc, rep)
	return rep, nil
}

type pageFacts struct {
	title       string
	viewport    *string
	mediaQuery  bool
	inTitle     bool
	inStyle     bool
	stylesheets int
}

func inspect(doc *html.Node, rep *Report) {
	var f pageFacts
	walk(doc, &f)

	rep.Title = strings.TrimSpace(f.title)
	rep.Issues = []string{}
	if f.viewport == nil {
		rep.Issues = append(rep.Issues, IssueMissingViewport)
	} else {
		rep.HasViewport = true
		rep.Viewport = *f.viewport
		rep.Issues = append(rep.Issues, viewportIssues(*f.viewport)...)
	}
	// External stylesheets may carry media queries we cannot see.
	if !f.mediaQuery && f.stylesheets == 0 {
		rep.Issues = append(rep.Issues, IssueMissingMediaQuery)
	}
	rep.Responsive = rep.HasViewport && len(rep.Issues) == 0
}

func walk(n *html.Node, f *pageFacts) {
	switch n.Type {
	case html.ElementNode:
		switch n.Data {
		case "title":
			f.inTitle = true
			defer func() { f.inTitle = false }()
		case "style":
			f.inStyle = true
			defer func() { f.inStyle = false }()
		case "meta":
			if f.viewport == nil && strings.EqualFold(attr(n, "name"), "viewport") {
				content := attr(n, "content")
				f.viewport = &content
			}
		case "link":
			if strings.EqualFold(attr(n, "rel"), "stylesheet") {
				f.stylesheets++
				if attr(n, "media") != "" {
					f.mediaQuery = true
				}
			}
		}
	case html.TextNode:
		switch {
		case f.inTitle && f.title == "":
			f.title = n.Data
		case f.inStyle && strings.Contains(n.Data, "@media"):
			f.mediaQuery = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, f)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// viewportIssues parses a content value such as
// "width=device-width, initial-scale=1".
func viewportIssues(content string) []string {
	props := make(map[string]string)
	for part := range strings.FieldsFuncSeq(content, func(r rune) bool { return r == ',' || r == ';' }) {
		k, v, _ := strings.Cut(part, "=")
		props[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}

	var issues []string
	if w, ok := props["width"]; !ok || w != "device-width" {
		issues = append(issues, IssueFixedWidth)
	}
	if props["user-scalable"] == "no" || props["user-scalable"] == "0" || props["maximum-scale"] == "1" || props["maximum-scale"] == "1.0" {
		issues = append(issues, IssueZoomDisabled)
	}
	if s, ok := props["initial-scale"]; ok && s != "1" && s != "1.0" {
		issues = append(issues, IssueInitialScale)
	}
	return issues
}
