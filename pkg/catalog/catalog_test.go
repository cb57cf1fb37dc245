package catalog

import (
	"time"

	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

// fakeParser maps raw page bodies to canned parse results, so tests drive
// structure through what the mock origin serves.
type fakeParser struct {
	lists    map[string]parser.ListPage
	details  map[string]parser.GalleryDetail
	previews map[string][]parser.PreviewDescriptor
	images   map[string]string
}

func (f *fakeParser) ParseList(html string) parser.ListPage {
	return f.lists[html]
}

func (f *fakeParser) ParseDetail(html string) parser.GalleryDetail {
	return f.details[html]
}

func (f *fakeParser) ParsePreviewList(html string) []parser.PreviewDescriptor {
	return f.previews[html]
}

func (f *fakeParser) ParseImagePage(html string) string {
	return f.images[html]
}

func testURLBuilder(base string) URLBuilder {
	return NewURLBuilderForBase(base)
}

// testClient returns a client with retries disabled so request counts in
// tests stay deterministic.
func testClient() *client.Client {
	cfg := client.DefaultConfig()
	cfg.MaxAttempts = 1
	cfg.Timeout = 5 * time.Second
	return client.New(cfg)
}
