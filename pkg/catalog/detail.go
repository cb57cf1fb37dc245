package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

// DetailFetcher fetches and parses one gallery's metadata page, cached by
// gallery identity.
type DetailFetcher struct {
	client *client.Client
	parser parser.Parser
	cache  *cache.Cache[parser.GalleryDetail]
	logger zerolog.Logger
}

// NewDetailFetcher creates a DetailFetcher backed by the detail tier.
func NewDetailFetcher(c *client.Client, p parser.Parser, tier *cache.Cache[parser.GalleryDetail]) *DetailFetcher {
	return &DetailFetcher{
		client: c,
		parser: p,
		cache:  tier,
		logger: logging.NewLogger("catalog"),
	}
}

// FetchDetail returns the parsed metadata for ref. A page without the
// mandatory title fields is ErrDetailEmpty; unlike an empty listing it is an
// error and is never cached, so the next call retries the origin.
func (f *DetailFetcher) FetchDetail(ctx context.Context, b URLBuilder, ref GalleryRef, hdr client.Headers) (parser.GalleryDetail, error) {
	key := cache.DetailKey(ref.GID, ref.Token)
	return f.cache.GetOrCompute(ctx, key, func(ctx context.Context) (parser.GalleryDetail, error) {
		url := b.GalleryURL(ref.GID, ref.Token)
		f.logger.Info().Str("url", url).Msg("Fetching gallery detail")

		html, err := f.client.FetchPage(ctx, url, hdr)
		if err != nil {
			return parser.GalleryDetail{}, err
		}

		detail := f.parser.ParseDetail(html)
		if detail.Title == "" && detail.TitleJP == "" {
			f.logger.Warn().Str("url", url).Msg("Gallery detail parsed empty")
			return parser.GalleryDetail{}, fmt.Errorf("%w: %s", ErrDetailEmpty, url)
		}
		return detail, nil
	})
}
