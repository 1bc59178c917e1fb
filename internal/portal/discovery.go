package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability"
)

// listingMarker is the id of the results table the portal renders for every
// listing response, including empty periods. Its absence means the markup
// changed (or an error page came back), which must surface as a discovery
// error: a silently empty result is indistinguishable from "already
// downloaded everything".
const listingMarker = "downloadlist"

// Discover enumerates the downloadable artifacts for a period/scheme pair.
// An empty slice with a present marker is a valid outcome: nothing
// published yet.
func (c *Client) Discover(ctx context.Context, session *Session, period entity.Period, scheme entity.Scheme) ([]ArtifactLink, error) {
	c.metrics.StartOperation("discover")
	defer c.metrics.EndOperation("discover")

	listURL := session.URL(c.cfg.ListPath)
	q := url.Values{}
	q.Set("year", fmt.Sprintf("%d", period.Year))
	q.Set("month", fmt.Sprintf("%02d", period.Month))
	q.Set("scheme", string(scheme))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create listing request: %w", err)
	}

	resp, err := session.Do(req)
	if err != nil {
		c.metrics.RecordError("discover", "network")
		return nil, domain.E(domain.KindNetwork, "portal.Discover", "listing request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordError("discover", "discovery")
		return nil, domain.E(domain.KindDiscovery, "portal.Discover",
			fmt.Sprintf("listing returned status %d", resp.StatusCode), nil)
	}

	links, sawMarker, err := parseListing(resp.Body)
	if err != nil {
		c.metrics.RecordError("discover", "discovery")
		return nil, domain.E(domain.KindDiscovery, "portal.Discover", "parsing listing markup", err)
	}
	if !sawMarker {
		c.metrics.RecordError("discover", "discovery")
		return nil, domain.E(domain.KindDiscovery, "portal.Discover",
			"listing table marker not found; portal markup may have changed", nil)
	}

	// Resolve relative hrefs against the portal base.
	for i := range links {
		links[i].URL = session.URL(links[i].URL)
	}

	c.metrics.RecordSuccess("discover")
	c.logger.Info(ctx, "artifact listing discovered", observability.Fields{
		"period": period.String(),
		"scheme": scheme,
		"count":  len(links),
	})
	return links, nil
}

// parseListing extracts artifact links from the listing markup. It returns
// whether the results-table marker was seen so the caller can distinguish
// "legitimately empty" from "unrecognizable page".
func parseListing(r io.Reader) ([]ArtifactLink, bool, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, false, err
	}

	var links []ArtifactLink
	var sawMarker bool

	var walk func(n *html.Node, inTable bool)
	walk = func(n *html.Node, inTable bool) {
		if n.Type == html.ElementNode {
			if n.Data == "table" && attr(n, "id") == listingMarker {
				sawMarker = true
				inTable = true
			}
			if inTable && n.Data == "a" {
				if link, ok := anchorToLink(n); ok {
					links = append(links, link)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inTable)
		}
	}
	walk(doc, false)

	return links, sawMarker, nil
}

// anchorToLink converts an anchor inside the results table into an
// ArtifactLink. Anchors with a data-doc attribute are POST-form downloads;
// plain spreadsheet hrefs are direct links. Anything else is navigation
// chrome and is skipped.
func anchorToLink(n *html.Node) (ArtifactLink, bool) {
	href := attr(n, "href")
	filename := strings.TrimSpace(text(n))

	if doc := attr(n, "data-doc"); doc != "" {
		params := url.Values{}
		params.Set("doc", doc)
		if rep := attr(n, "data-rep"); rep != "" {
			params.Set("rep", rep)
		}
		if filename == "" {
			return ArtifactLink{}, false
		}
		return ArtifactLink{
			URL:          href,
			Filename:     filename,
			DeclaredType: attr(n, "data-type"),
			Params:       params,
		}, true
	}

	if !isSpreadsheetHref(href) {
		return ArtifactLink{}, false
	}
	if filename == "" {
		filename = path.Base(href)
	}
	return ArtifactLink{
		URL:          href,
		Filename:     filename,
		DeclaredType: attr(n, "data-type"),
	}, true
}

func isSpreadsheetHref(href string) bool {
	if href == "" || href == "#" {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".xls", ".xlsx", ".zip":
		return true
	default:
		return false
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
