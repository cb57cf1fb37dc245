// Package catalog resolves listing pages, gallery detail and gallery images
// from the origin, caching every fetch path by its own tier.
package catalog

import (
	"fmt"
	"net/url"
)

// Origin sites. They share markup; cookie contents select which one a client
// may use.
const (
	SiteE  = "e-hentai.org"
	SiteEX = "exhentai.org"
)

// URLBuilder builds origin request URLs for one of the two sites.
type URLBuilder struct {
	baseURL string
}

// NewURLBuilderForBase builds URLs against an arbitrary base URL, for tests
// that point at a local origin.
func NewURLBuilderForBase(baseURL string) URLBuilder {
	return URLBuilder{baseURL: baseURL}
}

// NewURLBuilder selects the origin site.
func NewURLBuilder(useExhentai bool) URLBuilder {
	domain := SiteE
	if useExhentai {
		domain = SiteEX
	}
	return URLBuilder{baseURL: "https://" + domain}
}

// HomeURL builds the front-page URL, continuing from cursor when non-empty.
func (b URLBuilder) HomeURL(cursor string) string {
	if cursor == "" {
		return b.baseURL + "/"
	}
	return b.baseURL + "/?next=" + url.QueryEscape(cursor)
}

// SearchURL builds a search URL. Page 1 carries the keyword only; follow-up
// pages carry both the keyword and the continuation cursor.
func (b URLBuilder) SearchURL(keyword, cursor string) string {
	params := url.Values{}
	if keyword != "" {
		params.Set("f_search", keyword)
	}
	if cursor != "" {
		params.Set("next", cursor)
	}
	return b.baseURL + "/?" + params.Encode()
}

// TagURL builds a tag listing URL.
func (b URLBuilder) TagURL(tag string, page int) string {
	escaped := url.PathEscape(tag)
	if page == 0 {
		return fmt.Sprintf("%s/tag/%s", b.baseURL, escaped)
	}
	return fmt.Sprintf("%s/tag/%s/%d", b.baseURL, escaped, page)
}

// GalleryURL builds a gallery detail URL.
func (b URLBuilder) GalleryURL(gid int64, token string) string {
	return fmt.Sprintf("%s/g/%d/%s/", b.baseURL, gid, token)
}

// GalleryPageURL builds a gallery preview sub-page URL (0-based page).
func (b URLBuilder) GalleryPageURL(gid int64, token string, page int) string {
	return fmt.Sprintf("%s?p=%d", b.GalleryURL(gid, token), page)
}

// PopularURL builds the popular listing URL.
func (b URLBuilder) PopularURL() string {
	return b.baseURL + "/popular"
}

// Referer returns the referer header value for origin requests.
func (b URLBuilder) Referer() string {
	return b.baseURL
}
