package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"

	// Extra decoders; these formats are forwarded as JPEG.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWEBP = "image/webp"

	jpegQuality = 85

	// DefaultMaxPixels bounds width*height of an accepted upload.
	DefaultMaxPixels = 50_000_000
)

var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

var formatToMIME = map[string]string{
	"jpeg": MIMEJPEG,
	"png":  MIMEPNG,
	"gif":  MIMEGIF,
	"webp": MIMEWEBP,
}

// MIMEForFormat maps a decoder format name to the MIME type sent upstream.
// Formats the AI service is not given natively are reported as JPEG.
func MIMEForFormat(format string) string {
	if mime, ok := formatToMIME[format]; ok {
		return mime
	}
	return MIMEJPEG
}

// Normalized is an upload ready to be sent to the AI service.
type Normalized struct {
	Data     []byte
	MIMEType string
	// Format is the detected source format.
	Format string
}

// Normalize detects the upload format and returns bytes whose encoding matches the
// reported MIME type. JPEGs get EXIF orientation applied and are bounded to maxDimension
// (0 disables scaling); PNG, GIF and WEBP pass through untouched; anything else the
// decoders understand is re-encoded as JPEG.
//
// Images whose header declares more than maxPixels pixels (DefaultMaxPixels when 0) are
// rejected before any pixel data is decoded.
func Normalize(data []byte, maxDimension, maxPixels int) (*Normalized, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %s declares %dx%d pixels, limit is %d",
			ErrUnsupportedImage, format, cfg.Width, cfg.Height, maxPixels)
	}

	switch format {
	case "png", "gif", "webp":
		return &Normalized{Data: data, MIMEType: MIMEForFormat(format), Format: format}, nil
	case "jpeg":
		out, err := compressJPEG(data, maxDimension)
		if err != nil {
			return nil, err
		}
		return &Normalized{Data: out, MIMEType: MIMEJPEG, Format: format}, nil
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		out, err := encodeJPEG(scale(img, maxDimension))
		if err != nil {
			return nil, err
		}
		log.Infof("Re-encoded %s upload as JPEG: %d bytes -> %d bytes", format, len(data), len(out))
		return &Normalized{Data: out, MIMEType: MIMEJPEG, Format: format}, nil
	}
}

// compressJPEG applies EXIF orientation and bounds the image size. The original bytes
// are returned when neither is needed.
func compressJPEG(data []byte, maxDimension int) ([]byte, error) {
	orientation := Orientation(data)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	b := img.Bounds()
	fits := maxDimension <= 0 || (b.Dx() <= maxDimension && b.Dy() <= maxDimension)
	if orientation == 1 && fits {
		return data, nil
	}

	img = Orient(img, orientation)
	img = scale(img, maxDimension)

	out, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}
	nb := img.Bounds()
	log.Infof("Image normalized: %d bytes -> %d bytes (original: %dx%d, new: %dx%d, orientation: %d)",
		len(data), len(out), b.Dx(), b.Dy(), nb.Dx(), nb.Dy(), orientation)
	return out, nil
}

// Orientation reads the EXIF orientation tag, defaulting to 1.
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

// Orient returns img transformed so that it displays upright for the given EXIF
// orientation value.
func Orient(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Orientations 5-8 swap the axes.
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var nx, ny int
			switch orientation {
			case 2: // mirror horizontal
				nx, ny = w-1-x, y
			case 3: // rotate 180
				nx, ny = w-1-x, h-1-y
			case 4: // mirror vertical
				nx, ny = x, h-1-y
			case 5: // transpose
				nx, ny = y, x
			case 6: // rotate 90 clockwise
				nx, ny = h-1-y, x
			case 7: // transverse
				nx, ny = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				nx, ny = y, w-1-x
			}
			dst.Set(nx, ny, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// scale bounds the longer side to maxDimension, preserving aspect ratio.
func scale(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDimension <= 0 || (w <= maxDimension && h <= maxDimension) {
		return img
	}

	nw, nh := maxDimension, h*maxDimension/w
	if h > w {
		nw, nh = w*maxDimension/h, maxDimension
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
