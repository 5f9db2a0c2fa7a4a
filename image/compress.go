package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxImageDimension = 512 // Maximum width or height in pixels
	jpegQuality       = 85
)

// Orientation extracts the EXIF orientation tag, 1 when absent.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// Orient rotates and flips img so that it displays upright for the given EXIF
// orientation.
func Orient(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Orientations 5-8 swap the axes.
	swap := orientation >= 5
	dw, dh := w, h
	if swap {
		dw, dh = h, w
	}
	out := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			out.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// CompressImage decodes an uploaded photo, applies its EXIF orientation and
// scales it down to fit in maxImageDimension, re-encoding as JPEG. Images that
// are already small and upright are returned unchanged.
func CompressImage(data []byte) ([]byte, error) {
	orientation := Orientation(data)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if orientation != 1 {
		img = Orient(img, orientation)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= maxImageDimension && height <= maxImageDimension && orientation == 1 {
		return data, nil
	}

	scale := 1.0
	if width > maxImageDimension || height > maxImageDimension {
		scale = float64(maxImageDimension) / float64(width)
		if s := float64(maxImageDimension) / float64(height); s < scale {
			scale = s
		}
	}
	newWidth := max(1, min(maxImageDimension, int(math.Round(float64(width)*scale))))
	newHeight := max(1, min(maxImageDimension, int(math.Round(float64(height)*scale))))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode compressed image: %w", err)
	}

	log.WithFields(log.Fields{
		"format":      format,
		"orientation": orientation,
		"from":        fmt.Sprintf("%dx%d", width, height),
		"to":          fmt.Sprintf("%dx%d", newWidth, newHeight),
	}).Infof("Image compressed: %d bytes -> %d bytes", len(data), buf.Len())

	return buf.Bytes(), nil
}
