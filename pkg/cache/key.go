package cache

import (
	"fmt"
)

// Key composition per data kind. Any parameter difference must produce a
// distinct key, so every field that affects a result is part of its key.

// ListingKey identifies a cached listing page. Listings are keyed by the
// exact resolved URL, cursor parameter included.
func ListingKey(url string) string {
	return url
}

// DetailKey identifies a cached gallery detail page.
func DetailKey(gid int64, token string) string {
	return fmt.Sprintf("%d:%s", gid, token)
}

// GalleryKey identifies a cached resolved-image list for one gallery sub-page.
func GalleryKey(gid int64, token string, page int) string {
	return fmt.Sprintf("%d:%s:p%d", gid, token, page)
}

// CursorKey identifies the cursor link for (search key, page number). The
// stored token is the one that requests page+1.
func CursorKey(searchKey string, page int) string {
	return fmt.Sprintf("%s|%d", searchKey, page)
}
