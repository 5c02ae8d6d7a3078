package mnist

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gomlx/mnistprep/pkg/idx"
	"github.com/pkg/errors"
)

// Raw is a MNIST image as stored in the file: one byte per pixel, row-major.
// 0 is black (the background) and 255 is white (the digit color).
type Raw [idx.ImageSize]byte

// Assert Raw implements image.Image.
var _ image.Image = (*Raw)(nil)

// RawFromNormalized converts a normalized image (values in [0.0, 1.0]) back to raw pixels,
// rounding to the nearest intensity. Values out of range are clipped.
func RawFromNormalized(img []float32) (raw Raw, err error) {
	if len(img) != idx.ImageSize {
		return raw, errors.Errorf("image has %d values, expected %d", len(img), idx.ImageSize)
	}
	for ii, v := range img {
		v = min(max(v, 0), 1)
		raw[ii] = uint8(math.Round(float64(v) * idx.MaxIntensity))
	}
	return raw, nil
}

// ColorModel implements the image.Image interface.
func (img *Raw) ColorModel() color.Model {
	return color.GrayModel
}

// Bounds implements the image.Image interface.
func (img *Raw) Bounds() image.Rectangle {
	return image.Rect(0, 0, idx.Cols, idx.Rows)
}

// At implements the image.Image interface.
func (img *Raw) At(x, y int) color.Color {
	return color.Gray{Y: img.Pixel(x, y)}
}

// Pixel returns the intensity at (x, y).
func (img *Raw) Pixel(x, y int) uint8 {
	return img[y*idx.Cols+x]
}

// Set modifies the pixel at (x, y).
func (img *Raw) Set(x, y int, v uint8) {
	img[y*idx.Cols+x] = v
}

// SaveImage saves the image to filePath, scaled up by the given integer factor (nearest neighbor,
// so pixels stay sharp). The format is inferred from the file extension.
func SaveImage(img *Raw, filePath string, scale int) error {
	var out image.Image = img
	if scale > 1 {
		out = imaging.Resize(img, idx.Cols*scale, idx.Rows*scale, imaging.NearestNeighbor)
	}
	if err := imaging.Save(out, filePath); err != nil {
		return errors.Wrapf(err, "failed to save MNIST image to %q", filePath)
	}
	return nil
}
