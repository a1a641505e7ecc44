package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Render renders a templ component into an HTML string.
func Render(ctx context.Context, tpl templ.Component) (string, error) {
	var sb strings.Builder
	if err := tpl.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Layout wraps body in a minimal HTML document suitable for mail clients.
// Title and footer are escaped, body is rendered as is.
func Layout(title, footer string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := `<!doctype html><html><head><meta charset="utf-8"><title>` +
			templ.EscapeString(title) +
			`</title></head><body style="font-family:sans-serif;line-height:1.5;color:#222">`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		tail := "</body></html>"
		if footer != "" {
			tail = `<p style="color:#888;font-size:12px">` + templ.EscapeString(footer) + "</p>" + tail
		}
		_, err := io.WriteString(w, tail)
		return err
	})
}
