// Package discover finds archive links on HTML listing pages.
package discover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/brensch/zipfetch/internal/fetch"
)

// ArchiveSuffix is the link suffix Discover looks for.
const ArchiveSuffix = ".zip"

// ParseLinks walks the node tree depth first and returns the href of every
// <a> element ending in suffix, compared case-insensitively.
func ParseLinks(n *html.Node, suffix string) []string {
	var out []string
	suffix = strings.ToLower(suffix)

	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key != "href" {
					continue
				}
				if a.Val != "/" && strings.HasSuffix(strings.ToLower(a.Val), suffix) {
					out = append(out, a.Val)
				}
				break
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Discover fetches each listing page and returns the absolute URLs of the
// archives it links to, deduplicated and sorted. A page that cannot be
// fetched or parsed is skipped; its error is joined into the returned error
// alongside whatever links the other pages produced.
func Discover(ctx context.Context, fetcher fetch.Fetcher, indexURLs []string, logger *slog.Logger) ([]string, error) {
	var discoveryErr error
	found := make(map[string]string) // absolute URL -> listing page

	logger.Debug("Starting discovery.", slog.Int("index_count", len(indexURLs)))
	for i, indexURL := range indexURLs {
		if err := ctx.Err(); err != nil {
			logger.Warn("Discovery cancelled.")
			return sortedKeys(found), errors.Join(discoveryErr, err)
		}
		l := logger.With(slog.String("index_url", indexURL), slog.Int("index_num", i+1))

		base, err := url.Parse(indexURL)
		if err != nil {
			l.Warn("Skip: parse index URL failed.", "error", err)
			discoveryErr = errors.Join(discoveryErr, fmt.Errorf("parse index %s: %w", indexURL, err))
			continue
		}
		body, err := fetcher.Fetch(ctx, indexURL)
		if err != nil {
			l.Warn("Skip: fetch failed.", "error", err)
			discoveryErr = errors.Join(discoveryErr, fmt.Errorf("discover %s: %w", indexURL, err))
			continue
		}
		root, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			l.Warn("Skip: parse HTML failed.", "error", err)
			discoveryErr = errors.Join(discoveryErr, fmt.Errorf("parse HTML %s: %w", indexURL, err))
			continue
		}

		added := 0
		for _, link := range ParseLinks(root, ArchiveSuffix) {
			abs, err := base.Parse(link)
			if err != nil {
				l.Debug("Skip: bad link.", "link", link, "error", err)
				continue
			}
			key := abs.String()
			if _, ok := found[key]; !ok {
				found[key] = indexURL
				added++
			}
		}
		l.Debug("Listing page checked.", slog.Int("new_links", added))
	}

	links := sortedKeys(found)
	logger.Info("Discovery finished.", slog.Int("links", len(links)), slog.Bool("errors", discoveryErr != nil))
	return links, discoveryErr
}

// Merge appends discovered links to sources, dropping any already present.
// The order of sources is kept.
func Merge(sources, discovered []string) []string {
	seen := make(map[string]bool, len(sources)+len(discovered))
	out := make([]string, 0, len(sources)+len(discovered))
	for _, list := range [][]string{sources, discovered} {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
