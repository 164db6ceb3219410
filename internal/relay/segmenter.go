package relay

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// MaxPostLength is the destination post character limit, fixed by the
// Bluesky protocol.
const MaxPostLength = 300

// minSplitOffset is how far into a window a split point must sit before it
// is preferred over a hard cut. Splitting in the first few characters would
// produce near-empty chunks.
const minSplitOffset = 20

// HTMLToText normalizes a Mastodon status body to plain text. Presentation
// markup ("invisible"/"ellipsis" spans) is dropped, hashtag links render as
// their label, other links render as their target URL, and paragraphs are
// separated by blank lines.
func HTMLToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return strings.TrimSpace(src)
	}

	var b strings.Builder
	renderNode(&b, doc)

	return collapseWhitespace(b.String())
}

func renderNode(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "br":
			b.WriteString("\n")
			return
		case "a":
			if hasClass(n, "invisible") || hasClass(n, "ellipsis") {
				return
			}
			if attr(n, "rel") == "tag" || strings.Contains(attr(n, "class"), "hashtag") {
				// tag links keep their visible label
				b.WriteString(" " + textContent(n) + " ")
				return
			}
			if href := attr(n, "href"); href != "" {
				b.WriteString(" " + href + " ")
				return
			}
		case "span":
			if hasClass(n, "invisible") || hasClass(n, "ellipsis") {
				return
			}
		case "p":
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				renderNode(b, c)
			}
			b.WriteString("\n\n")
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// collapseWhitespace squeezes runs of spaces and tabs, strips spaces around
// newlines and limits blank runs to one empty line.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	var out []string
	blanks := 0
	for _, line := range lines {
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}

	return strings.Trim(strings.Join(out, "\n"), "\n ")
}

// SplitText segments a normalized status body into destination-sized
// chunks. Every chunk is prefixed with spoiler; postLink is carried in the
// last usable position; when numbering is on and the chunk count reaches
// threshold, every chunk gets a " [i/n]" suffix. threshold values below 1
// mean "always".
func SplitText(text, spoiler, postLink string, numbering bool, threshold int) []string {
	return SplitTextLimit(text, spoiler, postLink, numbering, threshold, MaxPostLength)
}

// SplitTextLimit is SplitText with an explicit chunk size limit.
func SplitTextLimit(text, spoiler, postLink string, numbering bool, threshold, limit int) []string {
	if threshold < 1 {
		threshold = 1
	}

	numberingWidth := 0
	if numbering {
		// room for " [12/34]"-style suffixes, growing with post count
		numberingWidth = 4 + 2*((utf8.RuneCountInString(text)+2999)/3000)
	}

	budget := limit - numberingWidth - utf8.RuneCountInString(spoiler)
	if budget < 1 {
		budget = 1
	}

	var chunks []string
	if utf8.RuneCountInString(text)+utf8.RuneCountInString(postLink) <= budget {
		chunks = []string{joinLink(text, postLink)}
	} else {
		work := []rune(joinLink(trimOneNewline(text), postLink))

		for len(work) > budget {
			window := work[:budget]
			cut := findSplit(window)

			chunk := strings.TrimSpace(string(window[:cut+1]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}

			work = work[cut+1:]
			for len(work) > 0 && unicode.IsSpace(work[0]) {
				work = work[1:]
			}
		}
		if rest := strings.TrimSpace(string(work)); rest != "" || len(chunks) == 0 {
			chunks = append(chunks, rest)
		}
	}

	total := len(chunks)
	for i, chunk := range chunks {
		if numbering && total >= threshold {
			chunks[i] = fmt.Sprintf("%s%s [%d/%d]", spoiler, chunk, i+1, total)
		} else {
			chunks[i] = spoiler + chunk
		}
	}

	return chunks
}

// findSplit picks the best split position inside a window: the rightmost
// newline, else period, else sentence punctuation, else space. Candidates
// too close to the window start are rejected in favor of a hard cut at the
// window boundary.
func findSplit(window []rune) int {
	for _, set := range []string{"\n", ".", "!?,;:", " "} {
		if idx := lastIndexAny(window, set); idx >= minSplitOffset {
			return idx
		}
	}
	return len(window) - 1
}

func lastIndexAny(window []rune, set string) int {
	for i := len(window) - 1; i >= 0; i-- {
		if strings.ContainsRune(set, window[i]) {
			return i
		}
	}
	return -1
}

func joinLink(text, link string) string {
	if link == "" {
		return text
	}
	if text == "" {
		return link
	}
	return text + "\n\n" + link
}

// trimOneNewline removes at most one leading and one trailing newline.
func trimOneNewline(text string) string {
	text = strings.TrimPrefix(text, "\n")
	return strings.TrimSuffix(text, "\n")
}
