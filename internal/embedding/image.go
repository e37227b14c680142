package embedding

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceBytes
	sourcePath
	sourceImage
)

// ImageSource is an image handed to an Embedder: raw encoded bytes, a file
// path, or an already decoded image. Build one with FromBytes, FromPath or
// FromImage; the zero value is not a valid source.
type ImageSource struct {
	kind sourceKind
	data []byte
	path string
	img  image.Image
	name string
}

// FromBytes wraps encoded image bytes (JPEG, PNG, GIF, BMP, TIFF).
func FromBytes(data []byte) ImageSource {
	return ImageSource{kind: sourceBytes, data: data}
}

// FromPath wraps an image file on disk. The file name doubles as the source name.
func FromPath(path string) ImageSource {
	return ImageSource{kind: sourcePath, path: path, name: filepath.Base(path)}
}

// FromImage wraps a decoded image.
func FromImage(img image.Image) ImageSource {
	return ImageSource{kind: sourceImage, img: img}
}

// WithName returns a copy of s carrying the original file name of the image.
func (s ImageSource) WithName(name string) ImageSource {
	s.name = name
	return s
}

// Name returns the original file name, if known.
func (s ImageSource) Name() string { return s.name }

// Decode resolves the source to an image, applying EXIF orientation for
// encoded inputs. Any failure wraps ErrUnsupportedInput.
func (s ImageSource) Decode() (image.Image, error) {
	switch s.kind {
	case sourceBytes:
		if len(s.data) == 0 {
			return nil, fmt.Errorf("%w: empty image data", ErrUnsupportedInput)
		}
		img, err := imaging.Decode(bytes.NewReader(s.data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
		}
		return img, nil
	case sourcePath:
		img, err := imaging.Open(s.path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedInput, s.path, err)
		}
		return img, nil
	case sourceImage:
		if s.img == nil || s.img.Bounds().Empty() {
			return nil, fmt.Errorf("%w: empty image", ErrUnsupportedInput)
		}
		return s.img, nil
	default:
		return nil, fmt.Errorf("%w: no image given", ErrUnsupportedInput)
	}
}

// CLIP normalization constants (ImageNet-derived, per channel RGB).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PreprocessCLIP resizes img so its shortest side is size, center crops to
// size x size, and returns a CHW float32 tensor normalized with the CLIP
// mean and standard deviation. Alpha is dropped.
func PreprocessCLIP(img image.Image, size int) []float32 {
	cropped := imaging.Fill(img, size, size, imaging.Center, imaging.CatmullRom)
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := y * cropped.Stride
		for x := 0; x < size; x++ {
			px := cropped.Pix[row+x*4 : row+x*4+3]
			i := y*size + x
			for c := 0; c < 3; c++ {
				out[c*plane+i] = (float32(px[c])/255 - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}

// captionFromName turns "red_car-01.jpg" into "red car 01".
func captionFromName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	}), " ")
}
