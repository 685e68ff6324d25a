package rewrite

import "testing"

func TestStripFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain html", in: "<p>hi</p>", want: "<p>hi</p>"},
		{name: "surrounding whitespace", in: "\n  <p>hi</p>\n", want: "<p>hi</p>"},
		{name: "html fence", in: "```html\n<p>hi</p>\n```", want: "<p>hi</p>"},
		{name: "bare fence", in: "```\n<div>\n  <p>hi</p>\n</div>\n```\n", want: "<div>\n  <p>hi</p>\n</div>"},
		{name: "tilde fence", in: "~~~html\n<p>hi</p>\n~~~", want: "<p>hi</p>"},
		{name: "unclosed fence", in: "```html\n<p>hi</p>\n", want: "<p>hi</p>"},
		{name: "trailing chatter kept", in: "```html\n<p>hi</p>\n```\nLet me know.", want: "<p>hi</p>\n```\nLet me know."},
		{name: "inner fence in pre", in: "```html\n<pre>\n```\ncode\n```\n</pre>\n```", want: "<pre>\n```\ncode\n```\n</pre>"},
		{name: "longer closing fence", in: "```html\n<p>hi</p>\n`````", want: "<p>hi</p>"},
		{name: "shorter closing fence kept", in: "````html\n<p>hi</p>\n```", want: "<p>hi</p>\n```"},
		{name: "mismatched closing fence kept", in: "```html\n<p>hi</p>\n~~~", want: "<p>hi</p>\n~~~"},
		{name: "opener only", in: "```html", want: ""},
		{name: "backtick in info string", in: "```a`b\n<p>hi</p>", want: "```a`b\n<p>hi</p>"},
		{name: "fence later in text", in: "Sure:\n```html\n<p>hi</p>\n```", want: "Sure:\n```html\n<p>hi</p>\n```"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StripFence(tt.in); got != tt.want {
				t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
