package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

func TestFetchList_CachedByURL(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("page1"))
	}))
	defer server.Close()

	p := &fakeParser{lists: map[string]parser.ListPage{
		"page1": {Galleries: []parser.GallerySummary{{GID: 1, Token: "t", Title: "a"}}},
	}}
	f := NewListFetcher(testClient(), p, cache.New[parser.ListPage]("listing-test-1", 10, time.Minute))
	ctx := context.Background()

	first, err := f.FetchList(ctx, server.URL, client.Headers{})
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	second, err := f.FetchList(ctx, server.URL, client.Headers{})
	if err != nil {
		t.Fatalf("second FetchList: %v", err)
	}

	if len(first.Galleries) != 1 || len(second.Galleries) != 1 {
		t.Errorf("galleries = %d, %d, want 1, 1", len(first.Galleries), len(second.Galleries))
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("origin saw %d requests, want 1 (second call cached)", n)
	}
}

func TestFetchList_EmptyResultIsCached(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("unrecognizable"))
	}))
	defer server.Close()

	p := &fakeParser{lists: map[string]parser.ListPage{}}
	f := NewListFetcher(testClient(), p, cache.New[parser.ListPage]("listing-test-2", 10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		page, err := f.FetchList(ctx, server.URL, client.Headers{})
		if err != nil {
			t.Fatalf("FetchList %d: %v (empty structure is not an error)", i, err)
		}
		if len(page.Galleries) != 0 {
			t.Errorf("galleries = %d, want 0", len(page.Galleries))
		}
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("origin saw %d requests, want 1 (empty result cached)", n)
	}
}

func TestFetchList_FetchFailureNotCached(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := &fakeParser{}
	f := NewListFetcher(testClient(), p, cache.New[parser.ListPage]("listing-test-3", 10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.FetchList(ctx, server.URL, client.Headers{}); !errors.Is(err, client.ErrOriginUnavailable) {
			t.Fatalf("FetchList %d error = %v, want ErrOriginUnavailable", i, err)
		}
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("origin saw %d requests, want 2 (failures never cached)", n)
	}
}

func TestFetchDetail(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("detail"))
	}))
	defer server.Close()

	p := &fakeParser{details: map[string]parser.GalleryDetail{
		"detail": {Title: "A Gallery", Pages: 20},
	}}
	f := NewDetailFetcher(testClient(), p, cache.New[parser.GalleryDetail]("detail-test-1", 10, time.Minute))
	ctx := context.Background()
	b := testURLBuilder(server.URL)
	ref := GalleryRef{GID: 1, Token: "abcdef1234"}

	detail, err := f.FetchDetail(ctx, b, ref, client.Headers{})
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if detail.Title != "A Gallery" || detail.Pages != 20 {
		t.Errorf("detail = %+v", detail)
	}

	if _, err := f.FetchDetail(ctx, b, ref, client.Headers{}); err != nil {
		t.Fatalf("second FetchDetail: %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("origin saw %d requests, want 1", n)
	}
}

func TestFetchDetail_EmptyIsErrorAndNotCached(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("no-title"))
	}))
	defer server.Close()

	p := &fakeParser{details: map[string]parser.GalleryDetail{}}
	f := NewDetailFetcher(testClient(), p, cache.New[parser.GalleryDetail]("detail-test-2", 10, time.Minute))
	ctx := context.Background()
	b := testURLBuilder(server.URL)
	ref := GalleryRef{GID: 2, Token: "abcdef1234"}

	for i := 0; i < 2; i++ {
		if _, err := f.FetchDetail(ctx, b, ref, client.Headers{}); !errors.Is(err, ErrDetailEmpty) {
			t.Fatalf("FetchDetail %d error = %v, want ErrDetailEmpty", i, err)
		}
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("origin saw %d requests, want 2 (empty detail is a miss candidate)", n)
	}
}
