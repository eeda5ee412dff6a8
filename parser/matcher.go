package parser

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
)

const matcherCacheSize = 64

var matchers = newMatcherCache()

func newMatcherCache() *lru.Cache[string, goquery.Matcher] {
	cache, err := lru.New[string, goquery.Matcher](matcherCacheSize)
	if err != nil {
		panic(err)
	}
	return cache
}

// compile returns the compiled matcher for selector. Invalid selectors
// match nothing.
func compile(selector string) goquery.Matcher {
	if m, ok := matchers.Get(selector); ok {
		return m
	}

	var m goquery.Matcher = matchNone{}
	if sel, err := cascadia.Compile(selector); err == nil {
		m = sel
	}
	matchers.Add(selector, m)
	return m
}

type matchNone struct{}

func (matchNone) Match(*html.Node) bool            { return false }
func (matchNone) MatchAll(*html.Node) []*html.Node { return nil }
func (matchNone) Filter([]*html.Node) []*html.Node { return nil }
