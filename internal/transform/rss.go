// Package transform rewrites fetched feed XML before persistence.
package transform

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
)

const (
	generatorText = "MorukLabs Dev Archive RSS Generator"
	rssPubDateFmt = "Mon, 02 Jan 2006 15:04:05 GMT"
	githubPrefix  = "https://github.com/"
	defaultLang   = "en-us"
)

// RSS rewrites a fetched RSS document to point at the archive: channel
// link and item links are repointed to the archive's public base URL and
// missing compliance elements (language, generator, guid, pubDate) are
// backfilled.
//
// Apply either returns the rewritten document or an error; it never
// returns altered-but-partial content, so a caller can always fall back
// to the raw input.
type RSS struct {
	publicBaseURL string
	asOf          time.Time
}

// NewRSS builds the transform. asOf supplies backfilled pubDate values so
// output is reproducible for a fixed run instant.
func NewRSS(publicBaseURL string, asOf time.Time) *RSS {
	return &RSS{
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		asOf:          asOf,
	}
}

// Apply parses and rewrites content. Malformed XML is an error.
func (t *RSS) Apply(content []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, fmt.Errorf("parse feed xml: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("feed has no root element")
	}
	channel := root.SelectElement("channel")
	if channel == nil {
		return nil, fmt.Errorf("no channel element found in feed")
	}

	t.rewriteChannel(channel)
	for _, item := range channel.SelectElements("item") {
		t.rewriteItem(channel, item)
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize feed xml: %w", err)
	}
	return out, nil
}

func (t *RSS) rewriteChannel(channel *etree.Element) {
	if link := channel.SelectElement("link"); link != nil {
		link.SetText(t.publicBaseURL)
	}

	if desc := channel.SelectElement("description"); desc != nil {
		original := desc.Text()
		if strings.Contains(original, "GitHub") && strings.Contains(original, "Trending") {
			desc.SetText(fmt.Sprintf("Curated %s - Archived by MorukLabs", original))
		}
	}

	if channel.SelectElement("language") == nil {
		channel.CreateElement("language").SetText(defaultLang)
	}

	generator := channel.SelectElement("generator")
	if generator == nil {
		generator = channel.CreateElement("generator")
	}
	generator.SetText(generatorText)
}

func (t *RSS) rewriteItem(channel, item *etree.Element) {
	link := item.SelectElement("link")
	if link != nil && strings.HasPrefix(link.Text(), githubPrefix) {
		repoName := strings.TrimPrefix(link.Text(), githubPrefix)
		link.SetText(fmt.Sprintf("%s/repo/%s", t.publicBaseURL, escapePath(repoName)))
	}

	if item.SelectElement("guid") == nil && link != nil {
		guid := item.CreateElement("guid")
		guid.SetText(link.Text())
		guid.CreateAttr("isPermaLink", "true")
	}

	if item.SelectElement("pubDate") == nil {
		pubDate := item.CreateElement("pubDate")
		if channelDate := channel.SelectElement("pubDate"); channelDate != nil && channelDate.Text() != "" {
			pubDate.SetText(channelDate.Text())
		} else {
			pubDate.SetText(t.asOf.UTC().Format(rssPubDateFmt))
		}
	}
}

// escapePath percent-encodes each path segment while preserving the
// segment separators.
func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}
