package rewrite

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// fenceParser only recognises CommonMark blocks; no extensions are needed.
var fenceParser = goldmark.New().Parser()

// StripFence removes a fenced code block wrapper from model output. Models
// frequently answer with ```html ... ``` even when told to output only html.
// Only the opening line and a bare closing fence on the last line are
// removed; fence lines inside the document are kept. Output that does not
// start with a fence is returned trimmed but otherwise unchanged. A missing
// closing fence is tolerated.
func StripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	marker, ok := openingFence(trimmed)
	if !ok {
		return trimmed
	}

	_, body, found := strings.Cut(trimmed, "\n")
	if !found {
		return ""
	}
	if i := strings.LastIndexByte(body, '\n'); isClosingFence(body[i+1:], marker) {
		if i < 0 {
			return ""
		}
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

// openingFence reports the fence marker s starts with, e.g. "```" or "~~~~".
func openingFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") && !strings.HasPrefix(s, "~~~") {
		return "", false
	}
	first, _, _ := strings.Cut(s, "\n")
	src := []byte(first)
	if _, ok := fenceParser.Parse(text.NewReader(src)).FirstChild().(*ast.FencedCodeBlock); !ok {
		return "", false
	}
	n := len(first) - len(strings.TrimLeft(first, first[:1]))
	return first[:n], true
}

// isClosingFence reports whether line closes a block opened with marker.
func isClosingFence(line, marker string) bool {
	line = strings.TrimSpace(line)
	return len(line) >= len(marker) && strings.Trim(line, marker[:1]) == ""
}
