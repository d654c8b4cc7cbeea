package assets

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wolfeidau/bundlekit/internal/config"
)

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>bundlekit</title>
</head>
<body>
</body>
</html>
`

var booleanAttributes = map[string]bool{
	"allowfullscreen": true,
	"async":           true,
	"autofocus":       true,
	"autoplay":        true,
	"checked":         true,
	"controls":        true,
	"default":         true,
	"defer":           true,
	"disabled":        true,
	"formnovalidate":  true,
	"hidden":          true,
	"inert":           true,
	"ismap":           true,
	"itemscope":       true,
	"loop":            true,
	"multiple":        true,
	"muted":           true,
	"nomodule":        true,
	"novalidate":      true,
	"open":            true,
	"playsinline":     true,
	"readonly":        true,
	"required":        true,
	"reversed":        true,
	"selected":        true,
}

// rewriteImageSources passes every <img src> through replace and returns the
// markup with the replacements applied. Everything else is copied verbatim.
func rewriteImageSources(markup []byte, replace func(src string) (string, bool, error)) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(markup))

	var b strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			return "", z.Err()
		}

		raw := append([]byte(nil), z.Raw()...)

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			tok := z.Token()
			if tok.DataAtom == atom.Img {
				changed := false
				for i, attr := range tok.Attr {
					if attr.Key != "src" {
						continue
					}
					value, ok, err := replace(attr.Val)
					if err != nil {
						return "", err
					}
					if ok {
						tok.Attr[i].Val = value
						changed = true
					}
				}
				if changed {
					b.WriteString(tok.String())
					continue
				}
			}
		}

		b.Write(raw)
	}
}

// minifyHTML applies the enabled minifier passes.
func minifyHTML(markup string, opts config.HTMLMinify) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))

	var b strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			return "", z.Err()
		case html.CommentToken:
			if opts.RemoveComments {
				continue
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			if opts.CollapseBooleanAttributes {
				raw := append([]byte(nil), z.Raw()...)
				tok := z.Token()
				if !hasBooleanAttribute(tok) {
					b.Write(raw)
					continue
				}
				writeCollapsedTag(&b, tok)
				continue
			}
		}
		b.Write(z.Raw())
	}
}

func hasBooleanAttribute(tok html.Token) bool {
	for _, attr := range tok.Attr {
		if booleanAttributes[attr.Key] {
			return true
		}
	}
	return false
}

func writeCollapsedTag(b *strings.Builder, tok html.Token) {
	b.WriteByte('<')
	b.WriteString(tok.Data)
	for _, attr := range tok.Attr {
		b.WriteByte(' ')
		b.WriteString(attr.Key)
		if booleanAttributes[attr.Key] {
			continue
		}
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(attr.Val))
		b.WriteByte('"')
	}
	if tok.Type == html.SelfClosingTagToken {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
}

// injectTags places stylesheet links at the end of <head> and scripts at the
// end of <body>. Missing tags fall back to the start and end of the document.
func injectTags(markup string, styles, scripts []string) string {
	var links strings.Builder
	for _, href := range styles {
		links.WriteString(`<link href="` + html.EscapeString(href) + `" rel="stylesheet">`)
	}
	var tags strings.Builder
	for _, src := range scripts {
		tags.WriteString(`<script src="` + html.EscapeString(src) + `"></script>`)
	}

	lower := strings.ToLower(markup)
	if i := strings.LastIndex(lower, "</head>"); i >= 0 {
		markup = markup[:i] + links.String() + markup[i:]
	} else {
		markup = links.String() + markup
	}

	lower = strings.ToLower(markup)
	if i := strings.LastIndex(lower, "</body>"); i >= 0 {
		markup = markup[:i] + tags.String() + markup[i:]
	} else {
		markup += tags.String()
	}

	return markup
}
