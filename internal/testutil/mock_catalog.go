// Package testutil provides testing utilities for the catalog proxy.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockGallery is one gallery served by the mock origin.
type MockGallery struct {
	GID      int64
	Token    string
	Title    string
	TitleJP  string
	Category string
	Uploader string
	Tags     map[string][]string
	Rating   float64
	Images   int // number of pages in the gallery
}

// MockCatalog is a configurable mock catalog origin. It serves listing,
// gallery detail, preview and image pages in the markup shape the parser
// expects, plus the image bytes themselves.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	galleries []*MockGallery

	// PageSize is how many galleries one listing page shows.
	PageSize int
	// ImagesPerPage is how many previews one gallery page shows.
	ImagesPerPage int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header

	imageBytes []byte
}

// NewMockCatalog creates a mock catalog origin with no galleries.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers:      make(map[string]http.HandlerFunc),
		PageSize:      25,
		ImagesPerPage: 20,
		imageBytes:    encodeTestJPEG(60, 90),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		handler, custom := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if custom {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears the tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler overrides the response for a specific path.
func (m *MockCatalog) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// AddGallery appends a gallery to the listing, in listing order.
func (m *MockCatalog) AddGallery(g MockGallery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.galleries = append(m.galleries, &g)
}

// AddGalleries appends n generated galleries with sequential GIDs starting
// at first. Each has a single image page.
func (m *MockCatalog) AddGalleries(first int64, n int) {
	for i := 0; i < n; i++ {
		gid := first + int64(i)
		m.AddGallery(MockGallery{
			GID:      gid,
			Token:    fmt.Sprintf("%010x", gid),
			Title:    fmt.Sprintf("Gallery %d", gid),
			Category: "Doujinshi",
			Uploader: "uploader",
			Rating:   4.5,
			Images:   1,
		})
	}
}

func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/":
		m.serveListing(w, r)
	case strings.HasPrefix(path, "/g/"):
		m.serveGallery(w, r)
	case strings.HasPrefix(path, "/s/"):
		m.serveImagePage(w, r)
	case strings.HasPrefix(path, "/img/") || strings.HasPrefix(path, "/t/"):
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(m.imageBytes)
	default:
		http.NotFound(w, r)
	}
}

// serveListing renders one listing page. The next= cursor names the GID of
// the last gallery on the previous page, matching how the origin chains
// result pages.
func (m *MockCatalog) serveListing(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.galleries
	if q := r.URL.Query().Get("f_search"); q != "" {
		matched = nil
		for _, g := range m.galleries {
			if strings.Contains(strings.ToLower(g.Title), strings.ToLower(q)) {
				matched = append(matched, g)
			}
		}
	}

	offset := 0
	if cursor := r.URL.Query().Get("next"); cursor != "" {
		after, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
		for i, g := range matched {
			if g.GID == after {
				offset = i + 1
				break
			}
		}
	}

	end := offset + m.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[offset:end]

	var b strings.Builder
	b.WriteString("<html><body><table class=\"itg gltc\"><tr><th>Category</th></tr>\n")
	for _, g := range page {
		url := fmt.Sprintf("%s/g/%d/%s/", m.server.URL, g.GID, g.Token)
		fmt.Fprintf(&b, `<tr>
<td class="glcat">%s</td>
<td class="gl2c"><img data-src="%s/t/%d.jpg" alt=""><div id="posted_%d">2024-01-15 12:00</div></td>
<td class="glname"><a href="%s"><div class="glink">%s</div><div class="ir" style="background-position:-16px -1px;"></div></a></td>
<td class="glhide"><a href="#">%s</a><div>%d pages</div></td>
</tr>
`, g.Category, m.server.URL, g.GID, g.GID, url, g.Title, g.Uploader, g.Images)
	}
	b.WriteString("</table>\n")

	if end < len(matched) {
		last := page[len(page)-1]
		fmt.Fprintf(&b, `<div class="searchnav"><a id="unext" href="%s/?next=%d">Next</a></div>`, m.server.URL, last.GID)
	} else {
		b.WriteString(`<div class="searchnav"></div>`)
	}
	b.WriteString("</body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(b.String()))
}

func (m *MockCatalog) findGallery(gid int64, token string) *MockGallery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.galleries {
		if g.GID == gid && g.Token == token {
			return g
		}
	}
	return nil
}

// serveGallery renders a gallery detail page including the preview grid for
// the requested p= page.
func (m *MockCatalog) serveGallery(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}
	gid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	g := m.findGallery(gid, parts[2])
	if g == nil {
		http.NotFound(w, r)
		return
	}

	previewPage, _ := strconv.Atoi(r.URL.Query().Get("p"))
	start := previewPage * m.ImagesPerPage
	end := start + m.ImagesPerPage
	if end > g.Images {
		end = g.Images
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, `<h1 id="gn">%s</h1><h1 id="gj">%s</h1>`, g.Title, g.TitleJP)
	fmt.Fprintf(&b, `<div id="gdc"><a href="#">%s</a></div>`, g.Category)
	fmt.Fprintf(&b, `<div id="gd1"><div style="background:transparent url(%s/t/%d.jpg) no-repeat"></div></div>`, m.server.URL, g.GID)

	b.WriteString(`<div id="taglist"><table>`)
	for name, values := range g.Tags {
		fmt.Fprintf(&b, `<tr><td class="tc">%s:</td><td>`, name)
		for _, v := range values {
			fmt.Fprintf(&b, `<div><a href="#">%s</a></div>`, v)
		}
		b.WriteString("</td></tr>")
	}
	b.WriteString("</table></div>")

	fmt.Fprintf(&b, `<p id="rating_label">Average: %.2f</p>`, g.Rating)
	fmt.Fprintf(&b, `<div id="gdd"><table>
<tr><td class="gdt1">Posted:</td><td class="gdt2">2024-01-15 12:00</td></tr>
<tr><td class="gdt1">Parent:</td><td class="gdt2">None</td></tr>
<tr><td class="gdt1">Visible:</td><td class="gdt2">Yes</td></tr>
<tr><td class="gdt1">Length:</td><td class="gdt2">%d pages</td></tr>
</table></div>`, g.Images)

	b.WriteString(`<div id="gdt">`)
	for i := start; i < end; i++ {
		fmt.Fprintf(&b,
			`<a href="%s/s/%d/%d"><div style="width:100px;height:143px;background:transparent url(%s/t/%d-sprite.jpg) -%dpx 0px no-repeat"></div></a>`,
			m.server.URL, g.GID, i, m.server.URL, g.GID, i*100)
	}
	b.WriteString("</div></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(b.String()))
}

// serveImagePage renders the single-image page that carries the full-size
// image URL.
func (m *MockCatalog) serveImagePage(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w,
		`<html><body><div id="i3"><img src="%s/img/%s/%s.jpg" alt=""></div></body></html>`,
		m.server.URL, parts[1], parts[2])
}

// encodeTestJPEG produces a solid-color JPEG of the given dimensions.
func encodeTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{90, 90, 200, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
