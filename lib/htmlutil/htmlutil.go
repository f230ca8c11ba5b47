// Package htmlutil holds small helpers shared by the page extractors.
package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// GetText collects the concatenated text content below a node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// CleanText normalizes extracted text: strips non-printable runes,
// trims surrounding whitespace and collapses inner runs of whitespace
// to a single space.
func CleanText(s string) string {
	var printable strings.Builder
	for _, c := range s {
		switch {
		case unicode.IsSpace(c):
			printable.WriteRune(' ')
		case unicode.IsPrint(c):
			printable.WriteRune(c)
		}
	}
	out := strings.TrimSpace(printable.String())
	return innerWhitespace.ReplaceAllString(out, " ")
}

// SelectionText is CleanText applied to a goquery selection.
func SelectionText(sel *goquery.Selection) string {
	return CleanText(sel.Text())
}
