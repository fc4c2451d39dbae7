package model

import (
	"strings"
	"testing"
)

func TestRenderedPageIsHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want bool
	}{
		{name: "doctype", html: "<!DOCTYPE html><html></html>", want: true},
		{name: "leading whitespace", html: "\n\n  <html lang=\"en\">", want: true},
		{name: "fragment with body", html: "<body><p>hi</p></body>", want: true},
		{name: "json", html: `{"ok":true}`, want: false},
		{name: "empty", html: "", want: false},
		{name: "marker beyond the sniffed prefix", html: strings.Repeat(" x", 400) + "<html>", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &RenderedPage{HTML: tt.html}
			if got := p.IsHTML(); got != tt.want {
				t.Errorf("IsHTML() = %v, want %v", got, tt.want)
			}
		})
	}
}
