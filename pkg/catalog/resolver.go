package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
	"github.com/sf-yuzifu/eh-api-server/pkg/parser"
)

// Prometheus metrics for image resolution.
var (
	resolverTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eh_resolver_tasks_total",
		Help: "Total descriptor resolution tasks by result",
	}, []string{"result"}) // "resolved", "failed"

	resolverBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eh_resolver_batch_duration_seconds",
		Help:    "Duration of full image resolution batches",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
	})
)

// ResolvedImage is the proxy-ready result for one preview descriptor. Index
// is the descriptor's original position; failed descriptors produce no entry,
// so indices in a result list may have gaps but are never renumbered.
type ResolvedImage struct {
	Index        int    `json:"index"`
	ThumbnailURL string `json:"thumbnail_jpg"`
	ImageURL     string `json:"image_jpg"`
}

// ResolverConfig holds the image resolver configuration.
type ResolverConfig struct {
	// MaxConcurrency bounds simultaneous origin requests per batch.
	MaxConcurrency int

	// BatchTimeout bounds a whole batch. Once exceeded, outstanding
	// descriptor fetches are cancelled and the already-resolved subset is
	// returned; a single straggler cannot hold the batch forever.
	BatchTimeout time.Duration

	// ThumbWidth and ThumbQuality parameterize the thumbnail proxy URLs
	// written into results.
	ThumbWidth   int
	ThumbQuality int
}

// DefaultResolverConfig returns a safe default configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		MaxConcurrency: 10,
		BatchTimeout:   45 * time.Second,
		ThumbWidth:     150,
		ThumbQuality:   40,
	}
}

// ImageResolver turns one gallery sub-page into proxy-ready image URLs by
// visiting every preview's linked page concurrently.
type ImageResolver struct {
	client *client.Client
	parser parser.Parser
	cache  *cache.Cache[[]ResolvedImage]
	config ResolverConfig
	logger zerolog.Logger
}

// NewImageResolver creates an ImageResolver backed by the gallery tier.
func NewImageResolver(c *client.Client, p parser.Parser, tier *cache.Cache[[]ResolvedImage], cfg ResolverConfig) *ImageResolver {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 45 * time.Second
	}
	return &ImageResolver{
		client: c,
		parser: p,
		cache:  tier,
		config: cfg,
		logger: logging.NewLogger("resolver"),
	}
}

// ResolveImages fetches the preview list for (ref, page), resolves every
// preview's final image URL concurrently, and returns the results ordered by
// original descriptor index. Failed descriptors are dropped, so the returned
// list may be shorter than the preview count; page-level failures (the
// preview page itself unreachable) are errors.
func (r *ImageResolver) ResolveImages(ctx context.Context, b URLBuilder, ref GalleryRef, page int, hdr client.Headers) ([]ResolvedImage, error) {
	key := cache.GalleryKey(ref.GID, ref.Token, page)
	return r.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]ResolvedImage, error) {
		return r.resolve(ctx, b, ref, page, hdr)
	})
}

func (r *ImageResolver) resolve(ctx context.Context, b URLBuilder, ref GalleryRef, page int, hdr client.Headers) ([]ResolvedImage, error) {
	start := time.Now()
	defer func() {
		resolverBatchDuration.Observe(time.Since(start).Seconds())
	}()

	previewURL := b.GalleryPageURL(ref.GID, ref.Token, page)
	r.logger.Info().Str("url", previewURL).Msg("Fetching preview page")

	html, err := r.client.FetchPage(ctx, previewURL, hdr)
	if err != nil {
		return nil, err
	}

	previews := r.parser.ParsePreviewList(html)
	if len(previews) == 0 {
		r.logger.Warn().Str("url", previewURL).Msg("Preview page parsed empty")
		return []ResolvedImage{}, nil
	}

	// One slot per descriptor, addressed by batch position. Ordering falls
	// out of the slot layout regardless of completion order.
	slots := make([]*ResolvedImage, len(previews))

	batchCtx, cancel := context.WithTimeout(ctx, r.config.BatchTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(r.config.MaxConcurrency)
	for i, preview := range previews {
		g.Go(func() error {
			// Failures stay local to their slot; siblings keep running.
			imageURL := r.resolveOne(batchCtx, preview, hdr)
			if imageURL == "" {
				resolverTasksTotal.WithLabelValues("failed").Inc()
				return nil
			}
			resolverTasksTotal.WithLabelValues("resolved").Inc()
			slots[i] = &ResolvedImage{
				Index:        preview.Index,
				ThumbnailURL: r.thumbnailProxyURL(preview),
				ImageURL:     proxyURL(imageURL),
			}
			return nil
		})
	}
	_ = g.Wait()

	images := make([]ResolvedImage, 0, len(previews))
	for _, slot := range slots {
		if slot != nil {
			images = append(images, *slot)
		}
	}

	r.logger.Info().
		Int64("gid", ref.GID).
		Int("page", page).
		Int("resolved", len(images)).
		Int("previews", len(previews)).
		Dur("duration", time.Since(start)).
		Msg("Image batch resolved")

	return images, nil
}

// resolveOne fetches a preview's linked page and extracts the final image
// URL. Returns "" on any failure.
func (r *ImageResolver) resolveOne(ctx context.Context, preview parser.PreviewDescriptor, hdr client.Headers) string {
	html, err := r.client.FetchPage(ctx, preview.PageURL, hdr)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Int("index", preview.Index).
			Str("url", preview.PageURL).
			Msg("Preview page fetch failed")
		return ""
	}

	imageURL := r.parser.ParseImagePage(html)
	if imageURL == "" {
		r.logger.Warn().
			Int("index", preview.Index).
			Str("url", preview.PageURL).
			Msg("No image URL in preview page")
	}
	return imageURL
}

// thumbnailProxyURL builds the proxy URL that crops this preview's region
// out of its sprite-sheet thumbnail.
func (r *ImageResolver) thumbnailProxyURL(preview parser.PreviewDescriptor) string {
	params := url.Values{}
	params.Set("url", preview.ThumbnailURL)
	params.Set("crop_x", strconv.Itoa(preview.Crop.X))
	params.Set("crop_y", strconv.Itoa(preview.Crop.Y))
	params.Set("crop_w", strconv.Itoa(preview.Crop.W))
	params.Set("crop_h", strconv.Itoa(preview.Crop.H))
	params.Set("w", strconv.Itoa(r.config.ThumbWidth))
	params.Set("q", strconv.Itoa(r.config.ThumbQuality))
	return "/image/proxy?" + params.Encode()
}

func proxyURL(sourceURL string) string {
	return fmt.Sprintf("/image/proxy?url=%s", url.QueryEscape(sourceURL))
}
