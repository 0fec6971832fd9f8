// Package vendorsite reads specifications straight off the manufacturer's
// own product pages. Official pages are the most trustworthy source but only
// answer for manufacturers we carry a site profile for.
package vendorsite

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/hwlore/hwlore/pkg/device"
	"github.com/hwlore/hwlore/pkg/sources"
	"github.com/hwlore/hwlore/pkg/whttp"
)

const (
	sourceName = "vendor-site"

	// Official vendor data outranks every scraped aggregate.
	confidence = 0.95
)

// siteProfile describes how one manufacturer's site is searched and parsed.
type siteProfile struct {
	searchURL  string // %s = query
	resultSel  string
	specRowSel string
	labelSel   string
	valueSel   string
	supportURL string
}

var profiles = map[string]siteProfile{
	"intel": {
		searchURL:  "https://ark.intel.com/content/www/us/en/ark/search.html?_charset_=UTF-8&q=%s",
		resultSel:  ".search-result a, a[data-component='arksearchresult']",
		specRowSel: ".tech-section .tech-section-row",
		labelSel:   ".tech-label",
		valueSel:   ".tech-data",
		supportURL: "https://www.intel.com/content/www/us/en/support.html",
	},
	"amd": {
		searchURL:  "https://www.amd.com/en/search/site-search.html#q=%s",
		resultSel:  ".search-result a, .coveo-result-link",
		specRowSel: ".product-specs tr, .specifications tr",
		labelSel:   "th, .spec-label",
		valueSel:   "td, .spec-value",
		supportURL: "https://www.amd.com/en/support",
	},
	"nvidia": {
		searchURL:  "https://www.nvidia.com/en-us/search/?page=1&sort=relevance&term=%s",
		resultSel:  ".search-results a, .result-item a",
		specRowSel: ".specs-table tr, #specs tr",
		labelSel:   "th, .spec-name",
		valueSel:   "td, .spec-detail",
		supportURL: "https://www.nvidia.com/en-us/support/",
	},
	"samsung": {
		searchURL:  "https://www.samsung.com/us/search/searchMain/?listType=g&searchTerm=%s",
		resultSel:  ".product-card a, .search-result a",
		specRowSel: ".specs-list li, .spec-highlight tr",
		labelSel:   ".name, th",
		valueSel:   ".value, td",
		supportURL: "https://www.samsung.com/us/support/",
	},
	"corsair": {
		searchURL:  "https://www.corsair.com/us/en/search?q=%s",
		resultSel:  ".product-tile a, .search-result a",
		specRowSel: ".tech-specs tr, .pdp-specs tr",
		labelSel:   "th, .spec-label",
		valueSel:   "td, .spec-value",
		supportURL: "https://help.corsair.com/",
	},
}

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
func (s *Source) Priority() int { return 10 }

func (s *Source) Supports(t device.Type, id device.Identifier) bool {
	_, ok := profiles[normalizeManufacturer(id.Manufacturer)]
	return ok && strings.TrimSpace(id.Model) != ""
}

func (s *Source) Fetch(ctx context.Context, t device.Type, id device.Identifier) (*device.PartialInfo, error) {
	profile, ok := profiles[normalizeManufacturer(id.Manufacturer)]
	if !ok {
		return nil, sources.NewSourceError(sourceName, "no-match", fmt.Errorf("no site profile for manufacturer %q", id.Manufacturer))
	}

	productURL, err := s.findProduct(ctx, profile, id)
	if err != nil {
		return nil, err
	}

	res, err := whttp.SendRequest(ctx, &whttp.Request{URL: productURL}, s.client)
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "fetch", err)
	}
	if res.StatusCode != 200 {
		return nil, sources.NewSourceError(sourceName, "fetch", fmt.Errorf("product page returned status %d", res.StatusCode))
	}
	if pageLooksMissing(res.HTMLTitle) {
		return nil, sources.NewSourceError(sourceName, "no-match", fmt.Errorf("product page reports not found: %q", res.HTMLTitle))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "parse", err)
	}

	info := &device.PartialInfo{
		Specs:          make(map[string]string),
		Confidence:     confidence,
		SourceName:     sourceName,
		SourceURL:      productURL,
		ProductPageURL: productURL,
		SupportPageURL: profile.supportURL,
	}

	doc.Find(profile.specRowSel).Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find(profile.labelSel).First().Text())
		value := strings.TrimSpace(row.Find(profile.valueSel).First().Text())
		label = strings.TrimSuffix(label, ":")
		if label != "" && value != "" {
			info.Specs[label] = value
		}
	})

	if v := strings.TrimSpace(doc.Find("meta[name='description']").AttrOr("content", "")); v != "" {
		info.Description = v
	}
	if v := doc.Find("meta[property='og:image']").AttrOr("content", ""); v != "" {
		info.ImageURL = v
	}

	doc.Find("a[href$='.pdf']").Each(func(_ int, a *goquery.Selection) {
		title := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if title != "" && href != "" {
			info.Docs = append(info.Docs, device.DocLink{Title: title, URL: href})
		}
	})

	return info, nil
}

func (s *Source) findProduct(ctx context.Context, profile siteProfile, id device.Identifier) (string, error) {
	searchURL := fmt.Sprintf(profile.searchURL, url.QueryEscape(strings.TrimSpace(id.Model)))

	res, err := whttp.SendRequest(ctx, &whttp.Request{URL: searchURL}, s.client)
	if err != nil {
		return "", sources.NewSourceError(sourceName, "fetch", err)
	}
	if res.StatusCode != 200 {
		return "", sources.NewSourceError(sourceName, "fetch", fmt.Errorf("search returned status %d", res.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
	if err != nil {
		return "", sources.NewSourceError(sourceName, "parse", err)
	}

	wantModel := strings.ToLower(strings.TrimSpace(id.Model))
	var productURL string
	doc.Find(profile.resultSel).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		if strings.Contains(text, wantModel) {
			productURL = href
			return false
		}
		return true
	})

	if productURL == "" {
		return "", sources.NewSourceError(sourceName, "no-match", fmt.Errorf("no vendor result for %q", id.Model))
	}
	if strings.HasPrefix(productURL, "/") {
		if u, err := url.Parse(searchURL); err == nil {
			productURL = u.Scheme + "://" + u.Host + productURL
		}
	}
	return productURL, nil
}

func pageLooksMissing(title string) bool {
	t := strings.ToLower(title)
	for _, marker := range []string{"not found", "404", "no longer available"} {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

func normalizeManufacturer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// Hosts report manufacturers in many shapes ("Intel(R) Corporation",
	// "Advanced Micro Devices, Inc.").
	switch {
	case strings.Contains(s, "intel"):
		return "intel"
	case strings.Contains(s, "advanced micro devices"), strings.Contains(s, "amd"):
		return "amd"
	case strings.Contains(s, "nvidia"):
		return "nvidia"
	case strings.Contains(s, "samsung"):
		return "samsung"
	case strings.Contains(s, "corsair"):
		return "corsair"
	}
	return s
}
