package telegramutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEscapeMarkdownV2(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain_text",
			in:   "hello world",
			want: "hello world",
		},
		{
			name: "double_emphasis_collapsed",
			in:   "**bold** text",
			want: "*bold* text",
		},
		{
			name: "reserved_characters",
			in:   "1. item (a) > b!",
			want: "1\\. item \\(a\\) \\> b\\!",
		},
		{
			name: "math_symbols",
			in:   "x + y - z = 0 | {n}",
			want: "x \\+ y \\- z \\= 0 \\| \\{n\\}",
		},
		{
			name: "heading_marker",
			in:   "# Title",
			want: "\\# Title",
		},
		{
			name: "emphasis_and_reserved_mixed",
			in:   "**Result:** done.",
			want: "*Result:* done\\.",
		},
		{
			name: "single_star_kept",
			in:   "*ok*",
			want: "*ok*",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EscapeMarkdownV2(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeMarkdownV2EveryReservedCharEscapedOnce(t *testing.T) {
	t.Parallel()

	in := "a.b>c#d+e-f=g|h{i}j(k)l!m"
	got := EscapeMarkdownV2(in)

	for i := 0; i < len(got); i++ {
		if markdownV2Escapes[rune(got[i])] {
			if i == 0 || got[i-1] != '\\' {
				t.Fatalf("reserved char %q at %d not escaped in %q", got[i], i, got)
			}
		}
	}
	if strings.Contains(got, `\\`) {
		t.Fatalf("double escape in %q", got)
	}
}

func TestTruncateMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantLen int
		cut     bool
	}{
		{name: "short", in: "hi", wantLen: 2},
		{name: "exact_limit", in: strings.Repeat("a", MaxMessageLen), wantLen: MaxMessageLen},
		{name: "over_limit", in: strings.Repeat("a", MaxMessageLen+1), wantLen: MaxMessageLen, cut: true},
		{name: "far_over_limit", in: strings.Repeat("b", 3*MaxMessageLen), wantLen: MaxMessageLen, cut: true},
		{name: "multibyte_over_limit", in: strings.Repeat("я", MaxMessageLen+50), wantLen: MaxMessageLen, cut: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := TruncateMessage(tt.in)
			if n := utf8.RuneCountInString(got); n != tt.wantLen {
				t.Fatalf("got %d runes, want %d", n, tt.wantLen)
			}
			if tt.cut && !strings.HasSuffix(got, "...") {
				t.Fatalf("truncated message missing ellipsis: %q", got[len(got)-10:])
			}
			if !tt.cut && got != tt.in {
				t.Fatalf("short message altered")
			}
		})
	}
}
