package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sf-yuzifu/eh-api-server/internal/testutil"
	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/catalog"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/imageproxy"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

func newTestStack(t *testing.T) (*httptest.Server, *testutil.MockCatalog) {
	t.Helper()

	mock := testutil.NewMockCatalog()
	t.Cleanup(mock.Close)

	clientCfg := client.DefaultConfig()
	clientCfg.MaxAttempts = 1
	clientCfg.Timeout = 10 * time.Second
	c := client.New(clientCfg)
	eh := parser.NewEH()

	prefix := t.Name() + "-"
	lists := catalog.NewListFetcher(c, eh, cache.New[parser.ListPage](prefix+"listing", 100, time.Minute))
	cursors := catalog.NewCursorStore(cache.New[string](prefix+"cursor", 256, time.Minute), lists)
	details := catalog.NewDetailFetcher(c, eh, cache.New[parser.GalleryDetail](prefix+"detail", 100, time.Minute))
	resolver := catalog.NewImageResolver(c, eh, cache.New[[]catalog.ResolvedImage](prefix+"gallery", 100, time.Minute), catalog.ResolverConfig{
		MaxConcurrency: 4,
		BatchTimeout:   10 * time.Second,
		ThumbWidth:     150,
		ThumbQuality:   40,
	})
	images := imageproxy.New(c,
		cache.New[[]byte](prefix+"raw", 32, time.Minute),
		cache.New[imageproxy.ImageArtifact](prefix+"proxy", 32, time.Minute))

	cfg := DefaultServerConfig()
	cfg.BaseURL = mock.URL()
	api := httptest.NewServer(New(cfg, lists, cursors, details, resolver, images).Handler())
	t.Cleanup(api.Close)

	return api, mock
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v\nbody: %s", url, err, body)
		}
	}
	return resp
}

type listBody struct {
	Success   bool   `json:"success"`
	Keyword   string `json:"keyword"`
	Page      int    `json:"page"`
	Galleries []struct {
		GID            int64   `json:"gid"`
		Token          string  `json:"token"`
		Title          string  `json:"title"`
		Category       string  `json:"category"`
		Rating         float64 `json:"rating"`
		Uploader       string  `json:"uploader"`
		Pages          int     `json:"pages"`
		Thumbnail      string  `json:"thumbnail"`
		ThumbnailProxy string  `json:"thumbnail_proxy"`
	} `json:"galleries"`
	Pagination struct {
		HasNext bool   `json:"has_next"`
		NextID  string `json:"next_id"`
	} `json:"pagination"`
}

func TestHome_FirstPage(t *testing.T) {
	api, mock := newTestStack(t)
	mock.AddGalleries(100, 30)

	var body listBody
	resp := getJSON(t, api.URL+"/", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Success {
		t.Error("success should be true")
	}
	if body.Page != 1 {
		t.Errorf("page = %d, want 1", body.Page)
	}
	if len(body.Galleries) != 25 {
		t.Fatalf("galleries = %d, want 25 (one origin page)", len(body.Galleries))
	}

	first := body.Galleries[0]
	if first.GID != 100 || first.Title != "Gallery 100" {
		t.Errorf("first gallery = %d %q, want 100 \"Gallery 100\"", first.GID, first.Title)
	}
	if first.Category != "Doujinshi" || first.Uploader != "uploader" || first.Pages != 1 {
		t.Errorf("row fields = %q/%q/%d not carried through", first.Category, first.Uploader, first.Pages)
	}
	if first.Rating != 4.0 {
		t.Errorf("rating = %v, want 4.0 from sprite offset", first.Rating)
	}
	if !strings.HasPrefix(first.ThumbnailProxy, "/image/proxy?") ||
		!strings.Contains(first.ThumbnailProxy, "w=150") ||
		!strings.Contains(first.ThumbnailProxy, "q=40") {
		t.Errorf("thumbnail proxy URL = %q", first.ThumbnailProxy)
	}
	if !body.Pagination.HasNext || body.Pagination.NextID == "" {
		t.Errorf("pagination = %+v, want a forward cursor", body.Pagination)
	}
}

func TestHome_LaterPageThroughCursorChain(t *testing.T) {
	api, mock := newTestStack(t)
	mock.AddGalleries(100, 30)

	var body listBody
	resp := getJSON(t, api.URL+"/?page=2", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(body.Galleries) != 5 {
		t.Fatalf("galleries = %d, want the 5 remaining", len(body.Galleries))
	}
	if body.Galleries[0].GID != 125 {
		t.Errorf("first gallery gid = %d, want 125", body.Galleries[0].GID)
	}
	if body.Pagination.HasNext {
		t.Error("last page should have no forward cursor")
	}
}

func TestHome_PagePastEnd(t *testing.T) {
	api, mock := newTestStack(t)
	mock.AddGalleries(100, 30)

	resp := getJSON(t, api.URL+"/?page=5", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHome_InvalidPage(t *testing.T) {
	api, _ := newTestStack(t)

	for _, raw := range []string{"0", "-1", "abc"} {
		resp := getJSON(t, api.URL+"/?page="+raw, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("page=%s: status = %d, want 400", raw, resp.StatusCode)
		}
	}
}

func TestSearch(t *testing.T) {
	api, mock := newTestStack(t)
	mock.AddGallery(testutil.MockGallery{GID: 1, Token: "00000000aa", Title: "Cooking with cats", Category: "Manga", Uploader: "u", Rating: 4, Images: 1})
	mock.AddGallery(testutil.MockGallery{GID: 2, Token: "00000000bb", Title: "Gardening", Category: "Manga", Uploader: "u", Rating: 4, Images: 1})

	var body listBody
	resp := getJSON(t, api.URL+"/search?q=cats", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Keyword != "cats" {
		t.Errorf("keyword = %q, want cats", body.Keyword)
	}
	if len(body.Galleries) != 1 || body.Galleries[0].GID != 1 {
		t.Fatalf("galleries = %+v, want only gid 1", body.Galleries)
	}
}

func TestSearch_MissingKeyword(t *testing.T) {
	api, _ := newTestStack(t)

	resp := getJSON(t, api.URL+"/search", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGalleryDetail(t *testing.T) {
	api, mock := newTestStack(t)
	mock.AddGallery(testutil.MockGallery{
		GID:      2000,
		Token:    "abcdef1234",
		Title:    "A Study In Markup",
		TitleJP:  "日本語タイトル",
		Category: "Manga",
		Tags:     map[string][]string{"language": {"japanese", "translated"}},
		Rating:   4.5,
		Images:   12,
	})

	var body struct {
		Success bool `json:"success"`
		Gallery struct {
			GID            int64               `json:"gid"`
			Token          string              `json:"token"`
			Title          string              `json:"title"`
			TitleJP        string              `json:"title_jp"`
			Category       string              `json:"category"`
			Tags           map[string][]string `json:"tags"`
			Rating         float64             `json:"rating"`
			Pages          int                 `json:"pages"`
			ThumbnailProxy string              `json:"thumbnail_proxy"`
		} `json:"gallery"`
	}
	resp := getJSON(t, api.URL+"/gallery/2000/abcdef1234", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	g := body.Gallery
	if g.GID != 2000 || g.Token != "abcdef1234" {
		t.Errorf("ref = %d/%s, want 2000/abcdef1234", g.GID, g.Token)
	}
	if g.Title != "A Study In Markup" || g.TitleJP != "日本語タイトル" {
		t.Errorf("titles = %q/%q", g.Title, g.TitleJP)
	}
	if g.Category != "Manga" || g.Rating != 4.5 || g.Pages != 12 {
		t.Errorf("metadata = %q/%v/%d", g.Category, g.Rating, g.Pages)
	}
	if len(g.Tags["language"]) != 2 {
		t.Errorf("tags = %v, want language with 2 values", g.Tags)
	}
	if !strings.Contains(g.ThumbnailProxy, "/image/proxy?") {
		t.Errorf("thumbnail proxy = %q", g.ThumbnailProxy)
	}
}

func TestGalleryDetail_UnknownGallery(t *testing.T) {
	api, _ := newTestStack(t)

	resp := getJSON(t, api.URL+"/gallery/99/ffffffffff", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 (origin refused the page)", resp.StatusCode)
	}
}

func TestGalleryDetail_InvalidRef(t *testing.T) {
	api, _ := newTestStack(t)

	resp := getJSON(t, api.URL+"/gallery/notanumber/abcdef1234", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGalleryImages(t *testing.T) {
	api, mock := newTestStack(t)
	mock.AddGallery(testutil.MockGallery{GID: 3000, Token: "aaaaaaaaaa", Title: "Pictures", Category: "Manga", Rating: 4, Images: 3})

	var body struct {
		Success bool  `json:"success"`
		GID     int64 `json:"gid"`
		Page    int   `json:"page"`
		Count   int   `json:"count"`
		Images  []struct {
			Index        int    `json:"index"`
			ThumbnailJPG string `json:"thumbnail_jpg"`
			ImageJPG     string `json:"image_jpg"`
		} `json:"images"`
	}
	resp := getJSON(t, api.URL+"/gallery/3000/aaaaaaaaaa/images", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Count != 3 || len(body.Images) != 3 {
		t.Fatalf("count = %d, images = %d, want 3", body.Count, len(body.Images))
	}
	for i, img := range body.Images {
		if img.Index != i {
			t.Errorf("images[%d].index = %d, want ascending order", i, img.Index)
		}
		if !strings.Contains(img.ImageJPG, "/image/proxy?url=") {
			t.Errorf("image_jpg = %q, want proxy URL", img.ImageJPG)
		}
		if !strings.Contains(img.ThumbnailJPG, "crop_x=") {
			t.Errorf("thumbnail_jpg = %q, want crop parameters", img.ThumbnailJPG)
		}
	}
}

func TestGalleryImages_InvalidPage(t *testing.T) {
	api, mock := newTestStack(t)
	mock.AddGalleries(1, 1)

	resp := getJSON(t, fmt.Sprintf("%s/gallery/1/%010x/images?page=-1", api.URL, 1), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestImageProxy(t *testing.T) {
	api, mock := newTestStack(t)

	resp := getJSON(t, api.URL+"/image/proxy?url="+mock.URL()+"/img/1/0.jpg&w=30&q=50", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", ct)
	}
	if got := resp.Header.Get("X-Image-Original-Size"); got != "60x90" {
		t.Errorf("original size header = %q, want 60x90", got)
	}
	if got := resp.Header.Get("X-Image-Compressed-Size"); got != "30x45" {
		t.Errorf("compressed size header = %q, want 30x45", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "public, max-age=86400" {
		t.Errorf("cache control = %q", got)
	}
}

func TestImageProxy_BadRequests(t *testing.T) {
	api, mock := newTestStack(t)

	cases := []struct {
		name  string
		query string
	}{
		{"missing url", ""},
		{"partial crop", "url=" + mock.URL() + "/img/1/0.jpg&crop_x=1&crop_y=2"},
		{"non-integer crop", "url=" + mock.URL() + "/img/1/0.jpg&crop_x=a&crop_y=2&crop_w=3&crop_h=4"},
		{"bad width", "url=" + mock.URL() + "/img/1/0.jpg&w=zero"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := getJSON(t, api.URL+"/image/proxy?"+tc.query, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	api, _ := newTestStack(t)

	var body struct {
		Status         string `json:"status"`
		CookieProvided bool   `json:"client_cookie_provided"`
	}
	resp := getJSON(t, api.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		t.Fatalf("health = %d %q", resp.StatusCode, body.Status)
	}
	if body.CookieProvided {
		t.Error("cookie flag should be false without X-EH-Cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, api.URL+"/health", nil)
	req.Header.Set("X-EH-Cookie", "ipb_member_id=1")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.CookieProvided {
		t.Error("cookie flag should be true with X-EH-Cookie")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api, _ := newTestStack(t)

	resp, err := http.Get(api.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "eh_") {
		t.Error("metrics output carries no eh_ series")
	}
}

func TestRequestContext_SiteSelection(t *testing.T) {
	s := &Server{cfg: DefaultServerConfig()}

	cases := []struct {
		name    string
		cookie  string
		referer string
	}{
		{"default site", "", "https://e-hentai.org"},
		{"member cookie", "ipb_member_id=1", "https://e-hentai.org"},
		{"exhentai marker", "ipb_member_id=1; igneous=EX", "https://exhentai.org"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				r.Header.Set("X-EH-Cookie", tc.cookie)
			}
			hdr, builder := s.requestContext(r)
			if builder.Referer() != tc.referer {
				t.Errorf("referer = %q, want %q", builder.Referer(), tc.referer)
			}
			if hdr.Cookie != tc.cookie {
				t.Errorf("cookie = %q, want %q", hdr.Cookie, tc.cookie)
			}
		})
	}
}
