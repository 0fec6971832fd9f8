// Package wikispecs answers from the Wikipedia API: a search followed by an
// intro extract and page image. Answers are thin (description, release year,
// an image) but available for almost anything with a product name.
package wikispecs

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/hwlore/hwlore/pkg/device"
	"github.com/hwlore/hwlore/pkg/sources"
	"github.com/hwlore/hwlore/pkg/whttp"
)

const (
	sourceName = "wikipedia"
	apiURL     = "https://en.wikipedia.org/w/api.php"

	// Encyclopedic prose, not a spec sheet.
	confidence = 0.7
)

var releaseYearRe = regexp.MustCompile(`(?:released|launched|introduced|announced)[^.]*?\b((?:19|20)\d{2})\b`)

type Source struct {
	client *retryablehttp.Client
}

func New(client *retryablehttp.Client) *Source {
	if client == nil {
		client = whttp.NewClient("")
	}
	return &Source{client: client}
}

func (s *Source) Name() string  { return sourceName }
func (s *Source) Priority() int { return 30 }

func (s *Source) Supports(t device.Type, id device.Identifier) bool {
	return strings.TrimSpace(id.Model) != ""
}

func (s *Source) Fetch(ctx context.Context, t device.Type, id device.Identifier) (*device.PartialInfo, error) {
	query := strings.TrimSpace(id.Manufacturer + " " + id.Model)

	title, err := s.searchTitle(ctx, query)
	if err != nil {
		return nil, err
	}

	extractURL := apiURL + "?action=query&prop=extracts|pageimages&exintro=1&explaintext=1&piprop=original&format=json&titles=" + url.QueryEscape(title)
	res, err := whttp.SendRequest(ctx, &whttp.Request{URL: extractURL}, s.client)
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "fetch", err)
	}
	if res.StatusCode != 200 {
		return nil, sources.NewSourceError(sourceName, "fetch", fmt.Errorf("extract query returned status %d", res.StatusCode))
	}

	var page gjson.Result
	gjson.Get(res.BodyString, "query.pages").ForEach(func(_, v gjson.Result) bool {
		page = v
		return false
	})
	if !page.Exists() {
		return nil, sources.NewSourceError(sourceName, "parse", fmt.Errorf("no page payload for %q", title))
	}

	info := &device.PartialInfo{
		Specs:          make(map[string]string),
		Confidence:     confidence,
		SourceName:     sourceName,
		SourceURL:      "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_")),
		Description:    strings.TrimSpace(page.Get("extract").Str),
		ImageURL:       page.Get("original.source").Str,
		ProductPageURL: "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_")),
	}

	if m := releaseYearRe.FindStringSubmatch(info.Description); m != nil {
		info.ReleaseDate = m[1]
	}

	return info, nil
}

func (s *Source) searchTitle(ctx context.Context, query string) (string, error) {
	searchURL := apiURL + "?action=query&list=search&format=json&srlimit=1&srsearch=" + url.QueryEscape(query)

	res, err := whttp.SendRequest(ctx, &whttp.Request{URL: searchURL}, s.client)
	if err != nil {
		return "", sources.NewSourceError(sourceName, "fetch", err)
	}
	if res.StatusCode != 200 {
		return "", sources.NewSourceError(sourceName, "fetch", fmt.Errorf("search returned status %d", res.StatusCode))
	}

	title := gjson.Get(res.BodyString, "query.search.0.title").Str
	if title == "" {
		return "", sources.NewSourceError(sourceName, "no-match", fmt.Errorf("no article for %q", query))
	}
	return title, nil
}
