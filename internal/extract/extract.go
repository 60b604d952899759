// Package extract lists the image references embedded in rich-text content.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var xmlPrologRegex = regexp.MustCompile(`^<\?xml[^>]*>\s*`)

// Images returns the unique, non-empty src values of every img element in
// fragment, in first-seen order. Malformed markup yields whatever the parser
// recovered; a parse failure yields nil. Parsing never resolves URLs.
func Images(fragment string) []string {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return nil
	}
	trimmed = xmlPrologRegex.ReplaceAllString(trimmed, "")

	root, err := parseFragment(trimmed)
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{}
	images := []string{}
	goquery.NewDocumentFromNode(root).Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		images = append(images, src)
	})
	return images
}

func parseFragment(content string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, node := range nodes {
		root.AppendChild(node)
	}
	return root, nil
}
