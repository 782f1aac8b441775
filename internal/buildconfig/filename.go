package buildconfig

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

const maxHashLength = 16

var placeholderRe = regexp.MustCompile(`\[(name|contenthash)(?::(\d+))?\]`)

// FilenameTemplate is a parsed output filename such as "js/[name].[contenthash:8].bundle.js".
type FilenameTemplate struct {
	raw string
}

// ParseFilename checks that tmpl names the bundle and embeds its content hash,
// and that the rendered path stays inside the output directory.
func ParseFilename(tmpl string) (FilenameTemplate, error) {
	if tmpl == "" {
		return FilenameTemplate{}, fmt.Errorf("%w: empty", ErrInvalidFilename)
	}

	var hasName, hasHash bool
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		switch m[1] {
		case "name":
			if m[2] != "" {
				return FilenameTemplate{}, fmt.Errorf("%w: [name] takes no length", ErrInvalidFilename)
			}
			hasName = true
		case "contenthash":
			if m[2] != "" {
				n, err := strconv.Atoi(m[2])
				if err != nil || n < 1 || n > maxHashLength {
					return FilenameTemplate{}, fmt.Errorf("%w: hash length must be 1-%d", ErrInvalidFilename, maxHashLength)
				}
			}
			hasHash = true
		}
	}

	if !hasName {
		return FilenameTemplate{}, fmt.Errorf("%w: %q has no [name]", ErrInvalidFilename, tmpl)
	}
	if !hasHash {
		return FilenameTemplate{}, fmt.Errorf("%w: %q has no [contenthash]", ErrInvalidFilename, tmpl)
	}
	if !isLocalPath(tmpl) {
		return FilenameTemplate{}, fmt.Errorf("%w: %q escapes the output directory", ErrInvalidFilename, tmpl)
	}

	return FilenameTemplate{raw: tmpl}, nil
}

// Render substitutes the bundle name and hex digest. The result uses forward slashes.
func (f FilenameTemplate) Render(name, digest string) string {
	return placeholderRe.ReplaceAllStringFunc(f.raw, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		if sub[1] == "name" {
			return name
		}
		if sub[2] == "" {
			return digest
		}
		n, _ := strconv.Atoi(sub[2])
		if n < len(digest) {
			return digest[:n]
		}
		return digest
	})
}

func (f FilenameTemplate) String() string {
	return f.raw
}

// isLocalPath reports whether p is a relative slash path that does not climb out of its root.
func isLocalPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return false
	}
	clean := path.Clean(p)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}
