package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp"

	"image-optimizer/internal/procerror"
)

// Canonical format names used throughout the pipeline.
const (
	FormatJPG  = "jpg"
	FormatPNG  = "png"
	FormatWebP = "webp"
	FormatGIF  = "gif"
)

// SupportedOutputs lists the formats the encoder can produce.
var SupportedOutputs = []string{FormatWebP, FormatJPG, FormatPNG}

// NormalizeFormat maps aliases and extensions onto canonical names.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch format {
	case "jpeg", "jpg":
		return FormatJPG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "gif":
		return FormatGIF
	default:
		return format
	}
}

// IsSupportedOutput reports whether the encoder can produce format.
func IsSupportedOutput(format string) bool {
	format = NormalizeFormat(format)
	for _, supported := range SupportedOutputs {
		if format == supported {
			return true
		}
	}
	return false
}

// Probe reads just enough of the payload to report its format and
// pixel dimensions without decoding the full image.
func Probe(data []byte) (format string, width, height int, err error) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, procerror.New(procerror.KindUnreadableImage, err)
	}
	return NormalizeFormat(name), cfg.Width, cfg.Height, nil
}

// Decode parses the payload into an in-memory image, applying EXIF
// orientation so downstream geometry sees upright pixels. The detected
// source format is returned in canonical form.
func Decode(data []byte) (image.Image, string, error) {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", procerror.New(procerror.KindUnreadableImage, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", procerror.New(procerror.KindUnreadableImage, err)
	}
	return img, NormalizeFormat(name), nil
}

// Encode writes img as format to w. A quality of 0 selects lossless
// output where the format supports it (webp, png); jpg falls back to
// its default quality.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	switch NormalizeFormat(format) {
	case FormatWebP:
		return encodeWebP(w, img, quality)
	case FormatJPG:
		if quality <= 0 {
			quality = 82
		}
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
			return procerror.New(procerror.KindOf(err), fmt.Errorf("jpg encode failed: %w", err))
		}
		return nil
	case FormatPNG:
		if err := png.Encode(w, img); err != nil {
			return procerror.New(procerror.KindOf(err), fmt.Errorf("png encode failed: %w", err))
		}
		return nil
	case FormatGIF:
		if err := gif.Encode(w, img, nil); err != nil {
			return procerror.New(procerror.KindOf(err), fmt.Errorf("gif encode failed: %w", err))
		}
		return nil
	default:
		return procerror.Invalid("unsupported output format %q", format)
	}
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(w io.Writer, img image.Image, quality int) error {
	var (
		opts *encoder.Options
		err  error
	)
	if quality <= 0 {
		opts, err = encoder.NewLosslessEncoderOptions(encoder.PresetDefault, 6)
	} else {
		opts, err = encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	}
	if err != nil {
		return procerror.Invalid("webp encoder options: %v", err)
	}
	if err := webp.Encode(w, img, opts); err != nil {
		return procerror.New(procerror.KindOf(err), fmt.Errorf("webp encode failed: %w", err))
	}
	return nil
}

// ExtensionFor returns the filename extension for a canonical format.
func ExtensionFor(format string) string {
	return NormalizeFormat(format)
}
