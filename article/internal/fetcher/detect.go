package fetcher

import (
	"bytes"
	"strings"
)

var spaShells = [][]byte{
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte(`<div id="__next"></div>`),
	[]byte(`<noscript>you need to enable javascript`),
	[]byte(`<noscript>enable javascript`),
}

// IsSufficient reports whether body carries enough readable text to be
// prepared without running its scripts. Less than 10% text, fewer than 200
// visible characters or a known SPA shell means no.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}
	text, markup := textMarkupRatio(body)
	total := text + markup
	if total == 0 || text < 200 {
		return false
	}
	if float64(text)/float64(total) < 0.10 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, shell := range spaShells {
		if bytes.Contains(lower, shell) {
			return false
		}
	}
	return true
}

// textMarkupRatio approximates the bytes of visible text and of markup.
// Script and style bodies count as markup.
func textMarkupRatio(body []byte) (text, markup int) {
	s := string(body)
	inTag := false
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '<':
			if closer := rawCloser(s[i:]); closer != "" {
				end := strings.Index(strings.ToLower(s[i:]), closer)
				if end < 0 {
					return text, markup + len(s) - i
				}
				end += len(closer)
				if gt := strings.IndexByte(s[i+end:], '>'); gt >= 0 {
					end += gt + 1
				}
				markup += end
				i += end
				continue
			}
			inTag = true
			markup++
		case ch == '>':
			inTag = false
			markup++
		case inTag:
			markup++
		case ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r':
			text++
		}
		i++
	}
	return text, markup
}

func rawCloser(s string) string {
	if len(s) > 8 {
		s = s[:8]
	}
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "<script"):
		return "</script"
	case strings.HasPrefix(s, "<style"):
		return "</style"
	}
	return ""
}
