// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// HTMLToMarkdown renders an HTML fragment as Markdown with ATX headings.
// The rendering is deterministic: identical input always yields identical
// output, which the content fingerprint depends on.
func HTMLToMarkdown(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var b strings.Builder
	for _, n := range doc.Find("body").Nodes {
		renderBlocks(n, &b)
	}
	return strings.TrimSpace(b.String()), nil
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "pre": true, "blockquote": true,
	"table": true, "header": true, "footer": true, "figure": true,
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && blockTags[c.Data] {
			return true
		}
	}
	return false
}

// para appends one rendered block, separated from the previous one by a
// blank line.
func para(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(s)
}

func renderBlocks(n *html.Node, b *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			para(b, strings.TrimSpace(reWhitespace.ReplaceAllString(c.Data, " ")))
		case html.ElementNode:
			switch c.Data {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				level := int(c.Data[1] - '0')
				para(b, strings.Repeat("#", level)+" "+strings.TrimSpace(inline(c)))
			case "p":
				para(b, strings.TrimSpace(inline(c)))
			case "ul":
				para(b, strings.Join(listLines(c, false, 0), "\n"))
			case "ol":
				para(b, strings.Join(listLines(c, true, 0), "\n"))
			case "pre":
				para(b, "```\n"+strings.Trim(textContent(c), "\n")+"\n```")
			case "blockquote":
				var inner strings.Builder
				renderBlocks(c, &inner)
				para(b, quote(inner.String()))
			case "script", "style", "head", "noscript":
				// dropped
			default:
				if hasBlockChild(c) {
					renderBlocks(c, b)
				} else {
					para(b, strings.TrimSpace(inline(c)))
				}
			}
		}
	}
}

// inline renders the children of n as a single Markdown line run.
func inline(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		inlineNode(c, &b)
	}
	return b.String()
}

func inlineNode(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(reWhitespace.ReplaceAllString(n.Data, " "))
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteString("\n")
		case "strong", "b":
			if t := strings.TrimSpace(inline(n)); t != "" {
				b.WriteString("**" + t + "**")
			}
		case "em", "i":
			if t := strings.TrimSpace(inline(n)); t != "" {
				b.WriteString("*" + t + "*")
			}
		case "code":
			if t := textContent(n); t != "" {
				b.WriteString("`" + t + "`")
			}
		case "a":
			text := strings.TrimSpace(inline(n))
			href := attr(n, "href")
			switch {
			case href != "" && text != "":
				fmt.Fprintf(b, "[%s](%s)", text, href)
			case text != "":
				b.WriteString(text)
			}
		case "img":
			fmt.Fprintf(b, "![%s](%s)", attr(n, "alt"), attr(n, "src"))
		case "script", "style":
			// dropped
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				inlineNode(c, b)
			}
		}
	}
}

// listLines renders ul/ol items, recursing into nested lists with
// two-space indentation per level.
func listLines(n *html.Node, ordered bool, depth int) []string {
	var lines []string
	i := 1
	indent := strings.Repeat("  ", depth)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", i)
			i++
		}
		lines = append(lines, indent+marker+strings.TrimSpace(itemText(c)))
		for g := c.FirstChild; g != nil; g = g.NextSibling {
			if g.Type == html.ElementNode && (g.Data == "ul" || g.Data == "ol") {
				lines = append(lines, listLines(g, g.Data == "ol", depth+1)...)
			}
		}
	}
	return lines
}

// itemText renders an li's inline content, skipping nested lists (those
// become their own indented lines).
func itemText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
			continue
		}
		inlineNode(c, &b)
	}
	return b.String()
}

// quote prefixes every line of s with "> ".
func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + l
		}
	}
	return strings.Join(lines, "\n")
}

// textContent returns the concatenated text of n's subtree, verbatim.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
