package imageproxy

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	// Registered decode formats. The origin serves JPEG, PNG, GIF and WebP.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// transform decodes data, applies the optional crop, downscales to MaxWidth
// preserving aspect ratio (never upscales), flattens any transparency or
// indexed color onto a white opaque background and re-encodes as JPEG at the
// requested quality.
func transform(data []byte, req TransformRequest) (ImageArtifact, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageArtifact{}, fmt.Errorf("%w: decode: %v", ErrTransformFailure, err)
	}

	if req.Crop != nil {
		src, err = cropImage(src, *req.Crop)
		if err != nil {
			return ImageArtifact{}, err
		}
	}

	bounds := src.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	outW, outH := origW, origH
	if req.MaxWidth > 0 && origW > req.MaxWidth {
		outW = req.MaxWidth
		outH = origH * req.MaxWidth / origW
		if outH < 1 {
			outH = 1
		}
	}

	// White canvas gives transparent regions an opaque background; drawing
	// with Over composites partial alpha against it.
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	if outW == origW && outH == origH {
		xdraw.Draw(dst, dst.Bounds(), src, bounds.Min, xdraw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	}

	quality := req.Quality
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return ImageArtifact{}, fmt.Errorf("%w: encode: %v", ErrTransformFailure, err)
	}

	return ImageArtifact{
		Bytes:          buf.Bytes(),
		OriginalWidth:  origW,
		OriginalHeight: origH,
		Width:          outW,
		Height:         outH,
	}, nil
}

// cropImage returns the crop region of src. The region is clamped to the
// image bounds; a region entirely outside them is a transform failure.
func cropImage(src image.Image, crop CropRect) (image.Image, error) {
	bounds := src.Bounds()
	region := image.Rect(crop.X, crop.Y, crop.X+crop.W, crop.Y+crop.H).
		Add(bounds.Min).
		Intersect(bounds)
	if region.Empty() {
		return nil, fmt.Errorf("%w: crop %+v outside image %dx%d",
			ErrTransformFailure, crop, bounds.Dx(), bounds.Dy())
	}

	if sub, ok := src.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(region), nil
	}

	cropped := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	xdraw.Draw(cropped, cropped.Bounds(), src, region.Min, xdraw.Src)
	return cropped, nil
}
