// Package parser turns raw origin markup into structured catalog records.
//
// Parser is a capability: fetch logic consumes it as a black box so alternate
// origins or markup revisions can be substituted without touching the fetch
// paths. Implementations must never fail on malformed input - upstream markup
// varies, so the contract is "always return an empty or partial result".
package parser

// GallerySummary is one row of a listing page.
type GallerySummary struct {
	GID       int64   `json:"gid"`
	Token     string  `json:"token"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Category  string  `json:"category,omitempty"`
	Posted    string  `json:"posted,omitempty"`
	Rating    float64 `json:"rating,omitempty"`
	Uploader  string  `json:"uploader,omitempty"`
	Pages     int     `json:"pages,omitempty"`
}

// Pagination carries the opaque continuation token for a listing page.
// NextID is meaningful only to the origin.
type Pagination struct {
	HasNext bool   `json:"has_next"`
	NextID  string `json:"next_id,omitempty"`
}

// ListPage is the parsed result of one listing page. An empty Galleries slice
// with no cursor is a valid result (empty catalog), distinct from fetch
// failure which never reaches the parser.
type ListPage struct {
	Galleries  []GallerySummary `json:"galleries"`
	Pagination Pagination       `json:"pagination"`
}

// GalleryDetail is the parsed metadata of one gallery page. Title is the
// mandatory field; a detail without it counts as a failed parse.
type GalleryDetail struct {
	Title     string              `json:"title,omitempty"`
	TitleJP   string              `json:"title_jp,omitempty"`
	Category  string              `json:"category,omitempty"`
	Thumbnail string              `json:"thumbnail,omitempty"`
	Tags      map[string][]string `json:"tags,omitempty"`
	Rating    float64             `json:"rating,omitempty"`
	Pages     int                 `json:"pages,omitempty"`
}

// CropRect is the region of a sprite-sheet thumbnail belonging to one preview.
type CropRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// PreviewDescriptor links a thumbnail crop region to the page that resolves
// to a full-size image. Index is the descriptor's position in its parent
// gallery's ordered preview list and is immutable once parsed.
type PreviewDescriptor struct {
	Index        int      `json:"index"`
	PageURL      string   `json:"page_url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Crop         CropRect `json:"crop"`
}

// Parser extracts structured records from origin markup.
type Parser interface {
	// ParseList parses a listing page into ordered gallery summaries plus
	// the pagination cursor, if any.
	ParseList(html string) ListPage

	// ParseDetail parses a gallery detail page. The zero value means the
	// page had no recognizable detail structure.
	ParseDetail(html string) GalleryDetail

	// ParsePreviewList parses a gallery sub-page into its ordered preview
	// descriptors.
	ParsePreviewList(html string) []PreviewDescriptor

	// ParseImagePage extracts the final image URL from an image page, or
	// "" when the page carries none.
	ParseImagePage(html string) string
}
