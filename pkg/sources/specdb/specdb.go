// Package specdb scrapes the TechPowerUp-style hardware spec database: a
// search request narrows down to one product page, whose spec tables (plus
// an embedded JSON payload on newer pages) are read into a PartialInfo.
package specdb

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/hwlore/hwlore/pkg/device"
	"github.com/hwlore/hwlore/pkg/sources"
	"github.com/hwlore/hwlore/pkg/whttp"
)

const (
	sourceName = "techpowerup"
	baseURL    = "https://www.techpowerup.com"

	// Community spec database: broad coverage, occasionally stale.
	confidence = 0.85
)

var searchPaths = map[device.Type]string{
	device.TypeCpu:     "/cpu-specs/",
	device.TypeGpu:     "/gpu-specs/",
	device.TypeMemory:  "/memory-specs/",
	device.TypeStorage: "/ssd-specs/",
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
func (s *Source) Priority() int { return 20 }

func (s *Source) Supports(t device.Type, id device.Identifier) bool {
	_, ok := searchPaths[t]
	return ok && strings.TrimSpace(id.Model) != ""
}

func (s *Source) Fetch(ctx context.Context, t device.Type, id device.Identifier) (*device.PartialInfo, error) {
	productURL, err := s.findProductPage(ctx, t, id)
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

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
	if err != nil {
		return nil, sources.NewSourceError(sourceName, "parse", err)
	}

	info := &device.PartialInfo{
		Specs:      make(map[string]string),
		Confidence: confidence,
		SourceName: sourceName,
		SourceURL:  productURL,
	}

	// Spec tables are grouped into titled sections.
	doc.Find(".sectioncontainer section").Each(func(_ int, sec *goquery.Selection) {
		catName := strings.TrimSpace(sec.Find("h1, h2").First().Text())
		cat := device.SpecCategory{Name: catName}

		sec.Find("table tr").Each(func(_ int, row *goquery.Selection) {
			label := strings.TrimSpace(row.Find("th").First().Text())
			value := strings.TrimSpace(row.Find("td").First().Text())
			label = strings.TrimSuffix(label, ":")
			if label == "" || value == "" {
				return
			}
			info.Specs[label] = value
			cat.Entries = append(cat.Entries, device.SpecEntry{Label: label, Value: value})
		})

		if catName != "" && len(cat.Entries) > 0 {
			info.Categories = append(info.Categories, cat)
		}
	})

	if v := strings.TrimSpace(doc.Find(".desc p").First().Text()); v != "" {
		info.Description = v
	}
	if v, ok := doc.Find(".large-image img, img.product-image").First().Attr("src"); ok {
		info.ImageURL = absoluteURL(v)
	}
	doc.Find(".gallery a img").Each(func(_ int, img *goquery.Selection) {
		if v, ok := img.Attr("src"); ok {
			info.GalleryURLs = append(info.GalleryURLs, absoluteURL(v))
		}
	})

	// Newer pages embed the structured record as JSON.
	doc.Find("script#__NEXT_DATA__").Each(func(_ int, sel *goquery.Selection) {
		payload := sel.Contents().Text()
		product := gjson.Get(payload, "props.pageProps.product")
		if !product.Exists() {
			return
		}
		if v := product.Get("released").Str; v != "" && info.ReleaseDate == "" {
			info.ReleaseDate = v
		}
		product.Get("specs").ForEach(func(k, v gjson.Result) bool {
			if _, exists := info.Specs[k.Str]; !exists && v.Str != "" {
				info.Specs[k.Str] = v.Str
			}
			return true
		})
	})

	if v := info.Specs["Release Date"]; v != "" && info.ReleaseDate == "" {
		info.ReleaseDate = v
	}
	info.ProductPageURL = productURL

	return info, nil
}

// findProductPage runs the site search and picks the first result whose text
// mentions the model.
func (s *Source) findProductPage(ctx context.Context, t device.Type, id device.Identifier) (string, error) {
	searchURL := baseURL + searchPaths[t] + "?ajaxsrch=" + url.QueryEscape(strings.TrimSpace(id.Model))

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
	doc.Find("table.items-desktop-table td a, .search-results a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		href, ok := a.Attr("href")
		if !ok || text == "" {
			return true
		}
		if strings.Contains(text, wantModel) || strings.Contains(wantModel, text) {
			productURL = absoluteURL(href)
			return false
		}
		return true
	})

	if productURL == "" {
		return "", sources.NewSourceError(sourceName, "no-match", fmt.Errorf("no search result for %q", id.Model))
	}
	return productURL, nil
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return baseURL + href
}
