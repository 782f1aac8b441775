package assets

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/localvoice/assetpipe/internal/buildconfig"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// closingTags records the byte offsets of the first </head> and </body>, -1 when absent.
type closingTags struct {
	head int
	body int
}

// findClosingTags tokenises src and locates the insertion points. The
// tokenizer only reads; template bytes are never re-serialised, so server-side
// template syntax such as {% block %} passes through untouched.
func findClosingTags(src []byte) (closingTags, error) {
	tags := closingTags{head: -1, body: -1}
	z := xhtml.NewTokenizer(bytes.NewReader(src))

	offset := 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return tags, err
			}
			return tags, nil
		}

		raw := len(z.Raw())
		if tt == xhtml.EndTagToken {
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Head:
				if tags.head < 0 {
					tags.head = offset
				}
			case atom.Body:
				if tags.body < 0 {
					tags.body = offset
				}
			}
		}
		offset += raw
	}
}

type insertion struct {
	at   int
	text string
}

// injectTags returns src with stylesheet links for the chunks placed before
// </head> and script tags placed before </head> or </body>, following the
// chunk order. Without the target tag the markup is appended.
func injectTags(src []byte, inj buildconfig.TemplateInjection, chunks map[string]ManifestEntry) ([]byte, error) {
	tags, err := findClosingTags(src)
	if err != nil {
		return nil, err
	}

	var links, scripts []string
	for _, name := range inj.Chunks {
		chunk, ok := chunks[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", buildconfig.ErrUnknownChunk, name)
		}
		if chunk.CSS != "" {
			links = append(links, linkTag(publicURL(inj.PublicPath, chunk.CSS)))
		}
		scripts = append(scripts, scriptTag(publicURL(inj.PublicPath, chunk.JS), inj.ScriptLoading))
	}

	scriptAt := tags.body
	if inj.Inject == buildconfig.InjectHead {
		scriptAt = tags.head
	}
	if scriptAt < 0 {
		scriptAt = len(src)
	}
	linkAt := tags.head
	if linkAt < 0 {
		linkAt = scriptAt
	}

	// Links precede scripts when both land on the same offset.
	inserts := []insertion{
		{at: linkAt, text: strings.Join(links, "")},
		{at: scriptAt, text: strings.Join(scripts, "")},
	}
	sort.SliceStable(inserts, func(i, j int) bool { return inserts[i].at < inserts[j].at })

	var buf bytes.Buffer
	buf.Grow(len(src) + len(inserts[0].text) + len(inserts[1].text))
	last := 0
	for _, ins := range inserts {
		buf.Write(src[last:ins.at])
		buf.WriteString(ins.text)
		last = ins.at
	}
	buf.Write(src[last:])

	return buf.Bytes(), nil
}

func linkTag(href string) string {
	return `<link href="` + html.EscapeString(href) + `" rel="stylesheet">`
}

func scriptTag(src string, loading buildconfig.ScriptLoading) string {
	switch loading {
	case buildconfig.ScriptDefer:
		return `<script defer src="` + html.EscapeString(src) + `"></script>`
	case buildconfig.ScriptModule:
		return `<script type="module" src="` + html.EscapeString(src) + `"></script>`
	default:
		return `<script src="` + html.EscapeString(src) + `"></script>`
	}
}

// publicURL joins the public prefix and a slash-separated output path.
func publicURL(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(rel, "/")
}
