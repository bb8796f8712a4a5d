// Package imaging handles the intake side of the pipeline: decoding uploaded
// images, rendering previews as data URLs and cutting out the region that gets
// sent to OCR.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes caps uploads when no explicit limit is configured.
const DefaultMaxBytes = 10 * 1024 * 1024

var (
	ErrNotImage    = errors.New("file is not a supported image")
	ErrTooLarge    = errors.New("image exceeds the upload limit")
	ErrEmptyRegion = errors.New("crop region does not overlap the image")
)

// Image is an encoded image together with its decoded dimensions.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Region is a crop rectangle in pixels, origin at the top-left corner.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Decode reads at most maxBytes from r and checks that the payload is an image.
func Decode(r io.Reader, maxBytes int64) (*Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, maxBytes)
	}
	return FromBytes(data)
}

// FromBytes wraps already-loaded image bytes.
func FromBytes(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return &Image{
		Data:     data,
		MIMEType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// DataURL renders the image as a base64 data URL for previews.
func (img *Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Crop cuts region out of the image and returns it PNG encoded. The region is
// clipped to the image bounds.
func (img *Image) Crop(region Region) (*Image, error) {
	if region.Empty() {
		return nil, ErrEmptyRegion
	}
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	bounds := src.Bounds()
	rect := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height).
		Add(bounds.Min).
		Intersect(bounds)
	if rect.Empty() {
		return nil, ErrEmptyRegion
	}

	dst := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}
	return &Image{
		Data:     buf.Bytes(),
		MIMEType: "image/png",
		Width:    rect.Dx(),
		Height:   rect.Dy(),
	}, nil
}

// Full returns the whole image as a crop.
func (img *Image) Full() (*Image, error) {
	return img.Crop(Region{Width: img.Width, Height: img.Height})
}
