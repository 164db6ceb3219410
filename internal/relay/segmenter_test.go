package relay

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "plain paragraph",
			html:     "<p>Hello world</p>",
			expected: "Hello world",
		},
		{
			name:     "paragraphs become blank lines",
			html:     "<p>one</p><p>two</p>",
			expected: "one\n\ntwo",
		},
		{
			name:     "line breaks",
			html:     "<p>line<br>break</p>",
			expected: "line\nbreak",
		},
		{
			name:     "links render as their target",
			html:     `<p>see <a href="https://example.com/post">here</a></p>`,
			expected: "see https://example.com/post",
		},
		{
			name:     "hashtag links keep their label",
			html:     `<p>Go <a href="https://mastodon.example/tags/golang" class="mention hashtag" rel="tag">#<span>golang</span></a></p>`,
			expected: "Go #golang",
		},
		{
			name:     "invisible spans are dropped",
			html:     `<p><span class="invisible">https://</span>rest</p>`,
			expected: "rest",
		},
		{
			name:     "whitespace is collapsed",
			html:     "<p>a   lot \t of   space</p>",
			expected: "a lot of space",
		},
		{
			name:     "empty content",
			html:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToText(tt.html); got != tt.expected {
				t.Errorf("HTMLToText(%q) = %q, want %q", tt.html, got, tt.expected)
			}
		})
	}
}

func TestSplitTextShortText(t *testing.T) {
	chunks := SplitText("Hello world", "", "", false, 1)
	if len(chunks) != 1 || chunks[0] != "Hello world" {
		t.Fatalf("expected single unchanged chunk, got %#v", chunks)
	}
}

func TestSplitTextLongRun(t *testing.T) {
	// 600 characters with no split points cut hard at the limit
	chunks := SplitText(strings.Repeat("A", 600), "", "", false, 1)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk != strings.Repeat("A", 300) {
			t.Errorf("chunk %d: expected 300 A's, got %d characters", i, len(chunk))
		}
	}
}

func TestSplitTextPrefersNewline(t *testing.T) {
	text := strings.Repeat("A", 100) + "\n" + strings.Repeat("B", 250)
	chunks := SplitText(text, "", "", false, 1)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(chunks), chunks)
	}
	if chunks[0] != strings.Repeat("A", 100) {
		t.Errorf("first chunk should end at the newline, got %q", chunks[0])
	}
	if chunks[1] != strings.Repeat("B", 250) {
		t.Errorf("second chunk should hold the remainder, got %q", chunks[1])
	}
}

func TestSplitTextPrefersSentenceEnd(t *testing.T) {
	text := strings.Repeat("A", 100) + ". " + strings.Repeat("B", 250)
	chunks := SplitText(text, "", "", false, 1)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(chunks), chunks)
	}
	if chunks[0] != strings.Repeat("A", 100)+"." {
		t.Errorf("first chunk should end after the period, got %q", chunks[0])
	}
	if chunks[1] != strings.Repeat("B", 250) {
		t.Errorf("second chunk should hold the remainder, got %q", chunks[1])
	}
}

func TestSplitTextRejectsEarlySplit(t *testing.T) {
	// The only space sits too close to the window start, so the window is
	// cut hard instead of producing a near-empty chunk.
	text := "ab " + strings.Repeat("C", 400)
	chunks := SplitText(text, "", "", false, 1)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if utf8.RuneCountInString(chunks[0]) != 300 {
		t.Errorf("first chunk should be a hard cut at 300, got %d", utf8.RuneCountInString(chunks[0]))
	}
}

func TestSplitTextSpoilerPrefix(t *testing.T) {
	spoiler := "CW: test\n\n"
	chunks := SplitText(strings.Repeat("A", 600), spoiler, "", false, 1)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !strings.HasPrefix(chunk, spoiler) {
			t.Errorf("chunk %d missing spoiler prefix: %q", i, chunk)
		}
		if utf8.RuneCountInString(chunk) > MaxPostLength {
			t.Errorf("chunk %d exceeds limit: %d", i, utf8.RuneCountInString(chunk))
		}
	}
}

func TestSplitTextPostLink(t *testing.T) {
	link := "Poll: https://mastodon.example/@user/123"

	t.Run("short text carries the link", func(t *testing.T) {
		chunks := SplitText("vote here", "", link, false, 1)
		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(chunks))
		}
		if chunks[0] != "vote here\n\n"+link {
			t.Errorf("unexpected chunk: %q", chunks[0])
		}
	})

	t.Run("empty text yields just the link", func(t *testing.T) {
		chunks := SplitText("", "", link, false, 1)
		if len(chunks) != 1 || chunks[0] != link {
			t.Fatalf("expected the bare link, got %#v", chunks)
		}
	})

	t.Run("long text carries the link in the last chunk", func(t *testing.T) {
		chunks := SplitText(strings.Repeat("word ", 150), "", link, false, 1)
		last := chunks[len(chunks)-1]
		if !strings.HasSuffix(last, link) {
			t.Errorf("last chunk should end with the link: %q", last)
		}
		for i, chunk := range chunks {
			if utf8.RuneCountInString(chunk) > MaxPostLength {
				t.Errorf("chunk %d exceeds limit: %d", i, utf8.RuneCountInString(chunk))
			}
		}
	})
}

func TestSplitTextNumbering(t *testing.T) {
	t.Run("suffix on every chunk", func(t *testing.T) {
		chunks := SplitText(strings.Repeat("A", 600), "", "", true, 1)
		if len(chunks) != 3 {
			t.Fatalf("expected 3 chunks, got %d", len(chunks))
		}
		if chunks[0] != strings.Repeat("A", 294)+" [1/3]" {
			t.Errorf("unexpected first chunk: %q", chunks[0])
		}
		if chunks[2] != strings.Repeat("A", 12)+" [3/3]" {
			t.Errorf("unexpected last chunk: %q", chunks[2])
		}
		for i, chunk := range chunks {
			if utf8.RuneCountInString(chunk) > MaxPostLength {
				t.Errorf("chunk %d exceeds limit: %d", i, utf8.RuneCountInString(chunk))
			}
		}
	})

	t.Run("single chunk below threshold keeps no suffix", func(t *testing.T) {
		chunks := SplitText("short post", "", "", true, 2)
		if len(chunks) != 1 || chunks[0] != "short post" {
			t.Fatalf("expected unchanged chunk, got %#v", chunks)
		}
	})

	t.Run("threshold one numbers a single chunk", func(t *testing.T) {
		chunks := SplitText("short post", "", "", true, 1)
		if len(chunks) != 1 || chunks[0] != "short post [1/1]" {
			t.Fatalf("expected numbered chunk, got %#v", chunks)
		}
	})
}

func TestSplitTextMultibyte(t *testing.T) {
	// Multibyte runes are never cut mid-sequence.
	chunks := SplitText(strings.Repeat("ü", 600), "", "", false, 1)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if utf8.RuneCountInString(chunk) != 300 {
			t.Errorf("chunk %d: expected 300 runes, got %d", i, utf8.RuneCountInString(chunk))
		}
	}
}

func TestSplitTextEmpty(t *testing.T) {
	chunks := SplitText("", "", "", false, 2)
	if len(chunks) != 1 || chunks[0] != "" {
		t.Fatalf("expected a single empty chunk, got %#v", chunks)
	}
}

func TestSplitTextLimitCustom(t *testing.T) {
	chunks := SplitTextLimit(strings.Repeat("A", 250), "", "", false, 1, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks at limit 100, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 100 {
			t.Errorf("chunk %d exceeds custom limit: %d", i, utf8.RuneCountInString(chunk))
		}
	}
}
