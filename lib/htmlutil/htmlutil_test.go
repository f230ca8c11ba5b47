package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b", CleanText("  a \n\t b  "))
	require.Equal(t, "Thailand", CleanText("Thailand"))
	require.Equal(t, "", CleanText(" \n "))
}

func TestSelectionText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div class="item-summary">  59364-001;
			Thailand;   Finance </div>`,
	))
	require.NoError(t, err)

	text := SelectionText(doc.Find("div.item-summary"))
	require.Equal(t, "59364-001; Thailand; Finance", text)
}

func TestGetText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<dd><strong class="sector">Finance</strong> / Banking</dd>`,
	))
	require.NoError(t, err)

	node := doc.Find("dd").Nodes[0]
	require.Equal(t, "Finance / Banking", GetText(node))
}
