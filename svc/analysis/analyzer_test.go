package analysis_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/svc/analysis"
)

func servePage(t *testing.T, contentType, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// localAnalyzer can reach httptest servers on loopback.
func localAnalyzer() *analysis.ViewportAnalyzer {
	return analysis.NewViewportAnalyzer(analysis.WithHTTPClient(http.DefaultClient))
}

func TestViewportAnalyzer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		page       string
		issues     []string
		responsive bool
	}{
		{
			name: "responsive page",
			page: `<!doctype html><html><head><title> Home </title>
				<meta name="viewport" content="width=device-width, initial-scale=1">
				<style>@media (max-width: 600px) { body { margin: 0 } }</style></head><body></body></html>`,
			issues:     []string{},
			responsive: true,
		},
		{
			name:   "no viewport",
			page:   `<html><head><title>Old</title><link rel="stylesheet" href="/a.css"></head></html>`,
			issues: []string{analysis.IssueMissingViewport},
		},
		{
			name: "fixed width with zoom disabled",
			page: `<html><head><meta name="Viewport" content="width=1024, user-scalable=no">
				<style>body{}</style></head></html>`,
			issues: []string{analysis.IssueFixedWidth, analysis.IssueZoomDisabled, analysis.IssueMissingMediaQuery},
		},
		{
			name: "odd initial scale",
			page: `<html><head><meta name="viewport" content="width=device-width; initial-scale=0.5">
				<link rel="stylesheet" media="screen and (max-width: 600px)" href="m.css"></head></html>`,
			issues: []string{analysis.IssueInitialScale},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			base := servePage(t, "text/html; charset=utf-8", tc.page)

			rep, err := localAnalyzer().Analyze(context.Background(), base)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, rep.StatusCode)
			assert.Equal(t, tc.issues, rep.Issues)
			assert.Equal(t, tc.responsive, rep.Responsive)
		})
	}
}

func TestViewportAnalyzerTitle(t *testing.T) {
	t.Parallel()
	base := servePage(t, "text/html", `<html><head><title> Home </title></head></html>`)
	rep, err := localAnalyzer().Analyze(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, "Home", rep.Title)
	assert.False(t, rep.HasViewport)
}

func TestViewportAnalyzerErrors(t *testing.T) {
	t.Parallel()
	a := localAnalyzer()
	ctx := context.Background()

	for _, raw := range []string{"", "example.com", "ftp://example.com/file", "http://"} {
		_, err := a.Analyze(ctx, raw)
		assert.ErrorIs(t, err, analysis.ErrInvalidURL, raw)
	}

	base := servePage(t, "text/html", "<html></html>")
	_, err := a.Analyze(ctx, base+"/missing")
	assert.ErrorIs(t, err, analysis.ErrFetchFailed)

	jsonURL := servePage(t, "application/json", `{"a":1}`)
	_, err = a.Analyze(ctx, jsonURL)
	assert.ErrorIs(t, err, analysis.ErrNotHTML)
}

func TestViewportAnalyzerRefusesInternalAddresses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := servePage(t, "text/html", "<html></html>")

	_, err := analysis.NewViewportAnalyzer().Analyze(ctx, base)
	assert.ErrorIs(t, err, analysis.ErrInvalidURL)
	assert.ErrorIs(t, err, analysis.ErrForbiddenAddress)

	for _, raw := range []string{"http://169.254.169.254/latest/meta-data/", "http://10.0.0.1/", "http://[::1]:8080/"} {
		_, err := analysis.NewViewportAnalyzer().Analyze(ctx, raw)
		assert.ErrorIs(t, err, analysis.ErrForbiddenAddress, raw)
	}
}

func TestPublicClientChecksRedirects(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "file:///etc/passwd", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	client := analysis.NewPublicClient(time.Second)
	client.Transport = http.DefaultTransport

	_, err := analysis.NewViewportAnalyzer(analysis.WithHTTPClient(client)).Analyze(context.Background(), srv.URL)
	assert.ErrorIs(t, err, analysis.ErrInvalidURL)
}
