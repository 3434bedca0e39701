package scraper

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var noiseTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Iframe:   true,
	atom.Noscript: true,
}

// matcher is one candidate container for the posting body, tried in order.
type matcher func(n *html.Node) bool

func attrContains(key, substr string) matcher {
	return func(n *html.Node) bool {
		for _, a := range n.Attr {
			if a.Key == key && strings.Contains(a.Val, substr) {
				return true
			}
		}
		return false
	}
}

func isTag(t atom.Atom) matcher {
	return func(n *html.Node) bool { return n.DataAtom == t }
}

var listingMatchers = []matcher{
	attrContains("class", "job-description"),
	attrContains("class", "jobDescription"),
	attrContains("class", "job_description"),
	attrContains("id", "job-description"),
	attrContains("class", "posting-"),
	isTag(atom.Article),
	isTag(atom.Main),
	attrContains("role", "main"),
}

// extractListing returns the text of the first matching container holding
// enough text, else the body text.
func extractListing(doc *html.Node) string {
	for _, m := range listingMatchers {
		for _, n := range findAll(doc, m) {
			if t := text(n); len(t) > minUsefulChars {
				return t
			}
		}
	}
	if body := findFirst(doc, isTag(atom.Body)); body != nil {
		return text(body)
	}
	return text(doc)
}

func findAll(n *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if noiseTags[n.DataAtom] {
				return
			}
			if m(n) {
				out = append(out, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, m matcher) *html.Node {
	if all := findAll(n, m); len(all) > 0 {
		return all[0]
	}
	return nil
}

// text collects visible text, skipping noise elements and collapsing
// whitespace runs.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if noiseTags[n.DataAtom] {
				return
			}
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(strings.Join(strings.Fields(s), " "))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
