package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sf-yuzifu/eh-api-server/pkg/catalog"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/imageproxy"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

// galleryJSON is a listing row with its thumbnail rewritten through the
// image proxy.
type galleryJSON struct {
	parser.GallerySummary
	ThumbnailProxy string `json:"thumbnail_proxy,omitempty"`
}

type listResponse struct {
	Success    bool              `json:"success"`
	Keyword    string            `json:"keyword,omitempty"`
	Page       int               `json:"page"`
	Galleries  []galleryJSON     `json:"galleries"`
	Pagination parser.Pagination `json:"pagination"`
}

type detailJSON struct {
	parser.GalleryDetail
	GID            int64  `json:"gid"`
	Token          string `json:"token"`
	ThumbnailProxy string `json:"thumbnail_proxy,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// originStatus maps fetch errors onto response codes. A missing page is the
// caller's problem, an unreachable origin is not.
func originStatus(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrPageUnavailable):
		return http.StatusNotFound, "page unavailable"
	case errors.Is(err, catalog.ErrDetailEmpty):
		return http.StatusNotFound, "gallery not found"
	case errors.Is(err, client.ErrOriginUnavailable):
		return http.StatusBadGateway, "origin unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// pageParam reads a 1-based listing page number, defaulting to 1.
func pageParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// thumbProxyURL rewrites an origin thumbnail to a proxy URL at the
// configured thumbnail width and quality.
func (s *Server) thumbProxyURL(thumbnail string) string {
	if thumbnail == "" {
		return ""
	}
	q := url.Values{}
	q.Set("url", thumbnail)
	q.Set("w", strconv.Itoa(s.cfg.ThumbWidth))
	q.Set("q", strconv.Itoa(s.cfg.ThumbQuality))
	return "/image/proxy?" + q.Encode()
}

func (s *Server) rewriteGalleries(galleries []parser.GallerySummary) []galleryJSON {
	out := make([]galleryJSON, 0, len(galleries))
	for _, g := range galleries {
		out = append(out, galleryJSON{
			GallerySummary: g,
			ThumbnailProxy: s.thumbProxyURL(g.Thumbnail),
		})
	}
	return out
}

// serveListing resolves the cursor for the requested page, fetches that
// page and replies with the rewritten listing. searchKey scopes the cursor
// chain; buildURL turns a cursor into the page's origin URL.
func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, searchKey, keyword string, buildURL func(cursor string) string) {
	page, ok := pageParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid page parameter")
		return
	}
	hdr, _ := s.requestContext(r)

	cursor, err := s.cursors.ResolveCursor(r.Context(), searchKey, page, buildURL, hdr)
	if err != nil {
		status, msg := originStatus(err)
		writeError(w, status, msg)
		return
	}

	listing, err := s.lists.FetchList(r.Context(), buildURL(cursor), hdr)
	if err != nil {
		status, msg := originStatus(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Success:    true,
		Keyword:    keyword,
		Page:       page,
		Galleries:  s.rewriteGalleries(listing.Galleries),
		Pagination: listing.Pagination,
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	_, builder := s.requestContext(r)
	s.serveListing(w, r, "", "", builder.HomeURL)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "missing search parameter q")
		return
	}
	_, builder := s.requestContext(r)
	s.serveListing(w, r, keyword, keyword, func(cursor string) string {
		return builder.SearchURL(keyword, cursor)
	})
}

// galleryRef reads the gid and token path segments.
func galleryRef(r *http.Request) (catalog.GalleryRef, bool) {
	gid, err := strconv.ParseInt(r.PathValue("gid"), 10, 64)
	if err != nil || gid <= 0 {
		return catalog.GalleryRef{}, false
	}
	token := r.PathValue("token")
	if token == "" {
		return catalog.GalleryRef{}, false
	}
	return catalog.GalleryRef{GID: gid, Token: token}, true
}

func (s *Server) handleGalleryDetail(w http.ResponseWriter, r *http.Request) {
	ref, ok := galleryRef(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gallery reference")
		return
	}
	hdr, builder := s.requestContext(r)

	detail, err := s.details.FetchDetail(r.Context(), builder, ref, hdr)
	if err != nil {
		status, msg := originStatus(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"gallery": detailJSON{
			GalleryDetail:  detail,
			GID:            ref.GID,
			Token:          ref.Token,
			ThumbnailProxy: s.thumbProxyURL(detail.Thumbnail),
		},
	})
}

func (s *Server) handleGalleryImages(w http.ResponseWriter, r *http.Request) {
	ref, ok := galleryRef(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gallery reference")
		return
	}

	// Gallery sub-pages are 0-based at the origin.
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		var err error
		page, err = strconv.Atoi(raw)
		if err != nil || page < 0 {
			writeError(w, http.StatusBadRequest, "invalid page parameter")
			return
		}
	}

	hdr, builder := s.requestContext(r)
	images, err := s.resolver.ResolveImages(r.Context(), builder, ref, page, hdr)
	if err != nil {
		status, msg := originStatus(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"gid":     ref.GID,
		"token":   ref.Token,
		"page":    page,
		"count":   len(images),
		"images":  images,
	})
}

// cropParams reads the four crop_ query parameters. All four must be
// present together; a subset or a non-integer is a client error.
func cropParams(q url.Values) (*imageproxy.CropRect, bool) {
	keys := []string{"crop_x", "crop_y", "crop_w", "crop_h"}
	present := 0
	for _, k := range keys {
		if q.Has(k) {
			present++
		}
	}
	if present == 0 {
		return nil, true
	}
	if present != len(keys) {
		return nil, false
	}

	values := make([]int, len(keys))
	for i, k := range keys {
		v, err := strconv.Atoi(q.Get(k))
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return &imageproxy.CropRect{X: values[0], Y: values[1], W: values[2], H: values[3]}, true
}

func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sourceURL := q.Get("url")
	if sourceURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	width := s.cfg.DefaultWidth
	if raw := q.Get("w"); raw != "" {
		var err error
		width, err = strconv.Atoi(raw)
		if err != nil || width < 1 {
			writeError(w, http.StatusBadRequest, "invalid w parameter")
			return
		}
	}

	quality := s.cfg.DefaultQuality
	if raw := q.Get("q"); raw != "" {
		var err error
		quality, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid q parameter")
			return
		}
	}
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	crop, ok := cropParams(q)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid crop parameters")
		return
	}

	hdr, _ := s.requestContext(r)
	artifact, err := s.images.GetTransformed(r.Context(), imageproxy.TransformRequest{
		SourceURL: sourceURL,
		MaxWidth:  width,
		Quality:   quality,
		Crop:      crop,
	}, hdr)
	if err != nil {
		if errors.Is(err, client.ErrOriginUnavailable) {
			writeError(w, http.StatusBadGateway, "origin unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "image processing failed")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Bytes)))
	w.Header().Set("X-Image-Original-Size", artifact.OriginalSize())
	w.Header().Set("X-Image-Compressed-Size", artifact.CompressedSize())
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(artifact.Bytes)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "ok",
		"client_cookie_provided": r.Header.Get("X-EH-Cookie") != "",
	})
}
