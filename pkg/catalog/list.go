package catalog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

// ListFetcher fetches and parses one listing page, cached by exact URL.
type ListFetcher struct {
	client *client.Client
	parser parser.Parser
	cache  *cache.Cache[parser.ListPage]
	logger zerolog.Logger
}

// NewListFetcher creates a ListFetcher backed by the listing tier.
func NewListFetcher(c *client.Client, p parser.Parser, tier *cache.Cache[parser.ListPage]) *ListFetcher {
	return &ListFetcher{
		client: c,
		parser: p,
		cache:  tier,
		logger: logging.NewLogger("catalog"),
	}
}

// FetchList returns the parsed listing page at url. Only a fetch failure is
// an error; a page the parser finds no structure in is a valid, cacheable
// empty result so "empty catalog" is distinguishable from "origin down".
func (f *ListFetcher) FetchList(ctx context.Context, url string, hdr client.Headers) (parser.ListPage, error) {
	return f.cache.GetOrCompute(ctx, cache.ListingKey(url), func(ctx context.Context) (parser.ListPage, error) {
		f.logger.Info().Str("url", url).Msg("Fetching listing page")

		html, err := f.client.FetchPage(ctx, url, hdr)
		if err != nil {
			return parser.ListPage{}, err
		}

		page := f.parser.ParseList(html)
		if len(page.Galleries) == 0 {
			f.logger.Warn().Str("url", url).Msg("Listing page parsed empty")
		}
		return page, nil
	})
}
