// Package imageproxy fetches, transforms and re-encodes origin images.
//
// Two tiers back the proxy: raw bytes are cached by source URL alone, so the
// same source is downloaded once no matter how many crop/width/quality
// combinations are requested; encoded artifacts are cached by the full
// transform request.
package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
)

// ErrTransformFailure is returned for decode or encode errors, distinct from
// the fetch failures reported as client.ErrOriginUnavailable.
var ErrTransformFailure = errors.New("image transform failure")

var (
	transformsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eh_image_transforms_total",
		Help: "Total image transforms by result",
	}, []string{"result"}) // "ok", "transform_error", "fetch_error"

	transformDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eh_image_transform_duration_seconds",
		Help:    "Duration of image transform operations",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
	})
)

// CropRect is an optional crop region applied before resizing.
type CropRect struct {
	X int
	Y int
	W int
	H int
}

// TransformRequest identifies one transformed rendition of a source image.
// Every field is part of the cache key.
type TransformRequest struct {
	SourceURL string
	MaxWidth  int
	Quality   int
	Crop      *CropRect
}

// Key returns the artifact cache key for this request.
func (r TransformRequest) Key() string {
	crop := "-"
	if r.Crop != nil {
		crop = fmt.Sprintf("%d,%d,%d,%d", r.Crop.X, r.Crop.Y, r.Crop.W, r.Crop.H)
	}
	return fmt.Sprintf("%s|w=%d|q=%d|crop=%s", r.SourceURL, r.MaxWidth, r.Quality, crop)
}

// ImageArtifact is an encoded rendition plus the dimensions exposed through
// observability headers. Original dimensions are measured after the crop
// step, before any resize.
type ImageArtifact struct {
	Bytes          []byte
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
}

// OriginalSize formats the pre-resize dimensions, e.g. "1000x800".
func (a ImageArtifact) OriginalSize() string {
	return fmt.Sprintf("%dx%d", a.OriginalWidth, a.OriginalHeight)
}

// CompressedSize formats the output dimensions.
func (a ImageArtifact) CompressedSize() string {
	return fmt.Sprintf("%dx%d", a.Width, a.Height)
}

// Proxy serves transformed images through the raw and artifact tiers.
type Proxy struct {
	client    *client.Client
	raw       *cache.Cache[[]byte]
	artifacts *cache.Cache[ImageArtifact]
	logger    zerolog.Logger
}

// New creates a Proxy backed by the raw and proxy tiers.
func New(c *client.Client, raw *cache.Cache[[]byte], artifacts *cache.Cache[ImageArtifact]) *Proxy {
	return &Proxy{
		client:    c,
		raw:       raw,
		artifacts: artifacts,
		logger:    logging.NewLogger("imageproxy"),
	}
}

// GetTransformed returns the encoded artifact for req, fetching and
// transforming on a cold artifact tier. Fetch failures surface as
// client.ErrOriginUnavailable, decode/encode failures as ErrTransformFailure;
// neither is ever cached.
func (p *Proxy) GetTransformed(ctx context.Context, req TransformRequest, hdr client.Headers) (ImageArtifact, error) {
	return p.artifacts.GetOrCompute(ctx, req.Key(), func(ctx context.Context) (ImageArtifact, error) {
		data, err := p.fetchRaw(ctx, req.SourceURL, hdr)
		if err != nil {
			transformsTotal.WithLabelValues("fetch_error").Inc()
			return ImageArtifact{}, err
		}

		start := time.Now()
		artifact, err := transform(data, req)
		transformDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			transformsTotal.WithLabelValues("transform_error").Inc()
			p.logger.Error().Err(err).Str("url", req.SourceURL).Msg("Image transform failed")
			return ImageArtifact{}, err
		}

		transformsTotal.WithLabelValues("ok").Inc()
		p.logger.Debug().
			Str("url", req.SourceURL).
			Str("original", artifact.OriginalSize()).
			Str("compressed", artifact.CompressedSize()).
			Int("bytes", len(artifact.Bytes)).
			Msg("Image transformed")
		return artifact, nil
	})
}

// fetchRaw downloads source bytes through the raw tier, keyed by URL alone so
// distinct transform parameters share one download.
func (p *Proxy) fetchRaw(ctx context.Context, sourceURL string, hdr client.Headers) ([]byte, error) {
	return p.raw.GetOrCompute(ctx, sourceURL, func(ctx context.Context) ([]byte, error) {
		p.logger.Info().Str("url", sourceURL).Msg("Fetching source image")
		return p.client.FetchBytes(ctx, sourceURL, hdr)
	})
}
