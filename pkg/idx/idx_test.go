package idx

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// header builds a big-endian header with the given fields.
func header(fields ...uint32) []byte {
	buf := make([]byte, 4*len(fields))
	for ii, f := range fields {
		binary.BigEndian.PutUint32(buf[4*ii:], f)
	}
	return buf
}

// filledImage returns an image record with the first n pixels set to value.
func filledImage(n int, value byte) []byte {
	img := make([]byte, ImageSize)
	for ii := range n {
		img[ii] = value
	}
	return img
}

func imagesFile(t *testing.T, images ...[]byte) []byte {
	var buf bytes.Buffer
	require.NoError(t, WriteImages(&buf, images))
	return buf.Bytes()
}

func labelsFile(t *testing.T, labels ...byte) []byte {
	var buf bytes.Buffer
	require.NoError(t, WriteLabels(&buf, labels))
	return buf.Bytes()
}

func TestReadUint32BE(t *testing.T) {
	r := bytes.NewReader([]byte{0x00, 0x00, 0x08, 0x03, 0x12, 0x34, 0x56, 0x78, 0xff})
	v, err := ReadUint32BE(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(2051), v)
	v, err = ReadUint32BE(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)
	assert.Equal(t, 1, r.Len(), "cursor should have advanced exactly 8 bytes")

	_, err = ReadUint32BE(r)
	var truncated *TruncatedReadError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, 4, truncated.Want)
	assert.Equal(t, 1, truncated.Got)
	assert.Equal(t, int64(8), truncated.Offset)
	assert.Equal(t, -1, truncated.Record)
}

func TestValidateImageHeader(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := bytes.NewReader(append(header(2051, 60000, 28, 28), 1, 2, 3))
		h, err := ValidateImageHeader(r)
		require.NoError(t, err)
		assert.Equal(t, ImageHeader{Count: 60000, Rows: 28, Cols: 28}, h)
		assert.Equal(t, 3, r.Len(), "cursor should be left at the first record")
	})

	t.Run("invalid dimensions", func(t *testing.T) {
		for _, dims := range [][2]uint32{{28, 27}, {27, 28}, {32, 32}, {0, 0}} {
			r := Named("bad-images", bytes.NewReader(header(2051, 1, dims[0], dims[1])))
			_, err := ValidateImageHeader(r)
			var dimErr *InvalidDimensionsError
			require.ErrorAs(t, err, &dimErr, "dims=%v", dims)
			assert.Equal(t, dims[0], dimErr.Rows)
			assert.Equal(t, dims[1], dimErr.Cols)
			assert.Equal(t, uint32(28), dimErr.WantRows)
			assert.Equal(t, "bad-images", dimErr.Path)
			assert.Contains(t, err.Error(), "expected 28x28")
		}
	})

	t.Run("labels file", func(t *testing.T) {
		r := Named("train-labels-idx1-ubyte", bytes.NewReader(labelsFile(t, 7)))
		_, err := ValidateImageHeader(r)
		var magicErr *InvalidMagicError
		require.ErrorAs(t, err, &magicErr)
		assert.Equal(t, uint32(2049), magicErr.Got)
		assert.Equal(t, uint32(2051), magicErr.Want)
		assert.Equal(t, "train-labels-idx1-ubyte", magicErr.Path)
		assert.Contains(t, err.Error(), "2049")
		assert.Contains(t, err.Error(), "train-labels-idx1-ubyte")
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ValidateImageHeader(bytes.NewReader(header(2051, 1, 28)[:10]))
		var truncated *TruncatedReadError
		require.ErrorAs(t, err, &truncated)
		assert.Equal(t, int64(8), truncated.Offset)
		assert.Equal(t, 2, truncated.Got)

		_, err = ValidateImageHeader(bytes.NewReader(nil))
		require.ErrorAs(t, err, &truncated)
		assert.Equal(t, 0, truncated.Got)
	})
}

func TestValidateLabelHeader(t *testing.T) {
	r := bytes.NewReader(labelsFile(t, 1, 2, 3))
	count, err := ValidateLabelHeader(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)
	assert.Equal(t, 3, r.Len())

	_, err = ValidateLabelHeader(bytes.NewReader(imagesFile(t, filledImage(0, 0))))
	var magicErr *InvalidMagicError
	require.ErrorAs(t, err, &magicErr)
	assert.Equal(t, uint32(2051), magicErr.Got)
	assert.Equal(t, uint32(2049), magicErr.Want)

	_, err = ValidateLabelHeader(bytes.NewReader(header(2049)))
	var truncated *TruncatedReadError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, int64(4), truncated.Offset)
}

func TestHeaderValidationIsIdempotent(t *testing.T) {
	r := bytes.NewReader(imagesFile(t, filledImage(10, 200), filledImage(20, 100)))
	first, err := ValidateImageHeader(r)
	require.NoError(t, err)
	_, err = r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	second, err := ValidateImageHeader(r)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	lr := bytes.NewReader(labelsFile(t, 4, 5))
	c1, err := ValidateLabelHeader(lr)
	require.NoError(t, err)
	_, err = lr.Seek(0, io.SeekStart)
	require.NoError(t, err)
	c2, err := ValidateLabelHeader(lr)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestNormalize(t *testing.T) {
	for b := 0; b <= 255; b++ {
		var got32 [1]float32
		Normalize(got32[:], []byte{byte(b)})
		require.Equal(t, float32(b)/255.0, got32[0], "b=%d", b)
		var got64 [1]float64
		Normalize(got64[:], []byte{byte(b)})
		require.Equal(t, float64(b)/255.0, got64[0], "b=%d", b)
		require.GreaterOrEqual(t, got32[0], float32(0))
		require.LessOrEqual(t, got32[0], float32(1))
	}
	var boundaries [2]float32
	Normalize(boundaries[:], []byte{0, 255})
	assert.Equal(t, float32(0.0), boundaries[0])
	assert.Equal(t, float32(1.0), boundaries[1])
}

func TestImageDecoderNormalizesEveryByteValue(t *testing.T) {
	images := make([][]byte, 256)
	for b := range images {
		images[b] = filledImage(ImageSize, byte(b))
	}
	dec, err := NewImageDecoder(bytes.NewReader(imagesFile(t, images...)))
	require.NoError(t, err)
	require.Equal(t, 256, dec.Count())
	for b := 0; b <= 255; b++ {
		img, err := dec.Next()
		require.NoError(t, err)
		require.Len(t, img, ImageSize)
		want := float32(b) / 255.0
		for _, v := range img {
			require.Equal(t, want, v)
		}
	}
	_, err = dec.Next()
	require.Equal(t, io.EOF, err)
}

func TestDecodeLabels(t *testing.T) {
	r := bytes.NewReader(labelsFile(t, 0, 9, 255))
	count, err := ValidateLabelHeader(r)
	require.NoError(t, err)
	dec := DecodeLabels(r, count)
	var got []int32
	for label, err := range dec.All() {
		require.NoError(t, err)
		got = append(got, label)
	}
	assert.Equal(t, []int32{0, 9, 255}, got)
	assert.Equal(t, 3, dec.Position())
	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestZipPairing(t *testing.T) {
	// Label i holds the sum of the normalized pixels of image i.
	labels := []byte{3, 1, 2}
	images := make([][]byte, len(labels))
	for ii, label := range labels {
		images[ii] = filledImage(int(label), 255)
	}
	imgDec, err := NewImageDecoder(bytes.NewReader(imagesFile(t, images...)))
	require.NoError(t, err)
	labelDec, err := NewLabelDecoder(bytes.NewReader(labelsFile(t, labels...)))
	require.NoError(t, err)

	count := 0
	for sample, err := range Zip(imgDec, labelDec).All() {
		require.NoError(t, err)
		require.Equal(t, count, sample.Index)
		var sum float32
		for _, v := range sample.Image {
			sum += v
		}
		assert.Equal(t, float32(sample.Label), sum, "sample #%d", sample.Index)
		count++
	}
	assert.Equal(t, len(labels), count)
}

func TestZipStopsAtShorterStream(t *testing.T) {
	imgDec, err := NewImageDecoder(bytes.NewReader(imagesFile(t, filledImage(1, 1), filledImage(2, 1), filledImage(3, 1))))
	require.NoError(t, err)
	labelDec, err := NewLabelDecoder(bytes.NewReader(labelsFile(t, 1, 2)))
	require.NoError(t, err)
	pairs := Zip(imgDec, labelDec)
	for range 2 {
		_, err := pairs.Next()
		require.NoError(t, err)
	}
	_, err = pairs.Next()
	require.Equal(t, io.EOF, err)

	// Images exhausted first: labels are not read further.
	imgDec, err = NewImageDecoder(bytes.NewReader(imagesFile(t, filledImage(1, 1))))
	require.NoError(t, err)
	labelDec, err = NewLabelDecoder(bytes.NewReader(labelsFile(t, 1, 2, 3)))
	require.NoError(t, err)
	pairs = Zip(imgDec, labelDec)
	_, err = pairs.Next()
	require.NoError(t, err)
	_, err = pairs.Next()
	require.Equal(t, io.EOF, err)
	assert.Equal(t, 1, labelDec.Position())
}

func TestTruncatedImageRecord(t *testing.T) {
	contents := append(header(ImageMagic, 2, Rows, Cols), filledImage(ImageSize, 10)...)
	contents = append(contents, make([]byte, ImageSize/2)...)
	dec, err := NewImageDecoder(Named("truncated-images", bytes.NewReader(contents)))
	require.NoError(t, err, "header is valid, error must only show up at the truncated record")

	img, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, float32(10)/255.0, img[0])

	_, err = dec.Next()
	var truncated *TruncatedReadError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, 1, truncated.Record)
	assert.Equal(t, int64(ImageHeaderSize+ImageSize), truncated.Offset)
	assert.Equal(t, ImageSize, truncated.Want)
	assert.Equal(t, ImageSize/2, truncated.Got)
	assert.Equal(t, "truncated-images", truncated.Path)
	assert.Contains(t, err.Error(), "record #1")

	// Errors are sticky.
	_, err2 := dec.Next()
	assert.Equal(t, err, err2)

	// Iterator yields the error once and stops.
	var errs int
	for _, err := range dec.All() {
		require.Error(t, err)
		errs++
	}
	assert.Equal(t, 1, errs)
}

func TestTruncatedLabels(t *testing.T) {
	dec, err := NewLabelDecoder(bytes.NewReader(append(header(LabelMagic, 3), 1, 2)))
	require.NoError(t, err)
	var got []int32
	var lastErr error
	for label, err := range dec.All() {
		if err != nil {
			lastErr = err
			break
		}
		got = append(got, label)
	}
	assert.Equal(t, []int32{1, 2}, got)
	var truncated *TruncatedReadError
	require.ErrorAs(t, lastErr, &truncated)
	assert.Equal(t, 2, truncated.Record)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestReadErrorsAreWrapped(t *testing.T) {
	_, err := ValidateImageHeader(Named("broken", failingReader{}))
	require.Error(t, err)
	var truncated *TruncatedReadError
	assert.False(t, errors.As(err, &truncated))
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Contains(t, err.Error(), "broken")
}

func TestEndToEnd(t *testing.T) {
	images := imagesFile(t, filledImage(ImageSize, 255))
	require.Equal(t, header(2051, 1, 28, 28), images[:ImageHeaderSize])
	labels := labelsFile(t, 7)
	require.Equal(t, header(2049, 1), labels[:LabelHeaderSize])

	imgDec, err := NewImageDecoder(bytes.NewReader(images))
	require.NoError(t, err)
	labelDec, err := NewLabelDecoder(bytes.NewReader(labels))
	require.NoError(t, err)

	var samples []Sample
	for sample, err := range Zip(imgDec, labelDec).All() {
		require.NoError(t, err)
		samples = append(samples, sample)
	}
	require.Len(t, samples, 1)
	require.Len(t, samples[0].Image, ImageSize)
	for _, v := range samples[0].Image {
		require.Equal(t, float32(1.0), v)
	}
	assert.Equal(t, int32(7), samples[0].Label)
}

func TestWriteImagesRejectsWrongSize(t *testing.T) {
	var buf bytes.Buffer
	err := WriteImages(&buf, [][]byte{make([]byte, 10)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image #0")
}

func TestZipIndexFollowsImagesPosition(t *testing.T) {
	imgDec, err := NewImageDecoder(bytes.NewReader(imagesFile(t, filledImage(0, 0), filledImage(1, 255), filledImage(2, 255))))
	require.NoError(t, err)
	labelDec, err := NewLabelDecoder(bytes.NewReader(labelsFile(t, 0, 1, 2)))
	require.NoError(t, err)
	pairs := Zip(imgDec, labelDec)

	// Advance both streams outside of Pairs.
	_, err = imgDec.NextRaw()
	require.NoError(t, err)
	_, err = labelDec.Next()
	require.NoError(t, err)

	for sample, err := range pairs.All() {
		require.NoError(t, err)
		assert.Equal(t, int(sample.Label), sample.Index)
	}
	assert.Equal(t, 3, imgDec.Position())
}

func TestTruncatedReadOffsetFromSeeker(t *testing.T) {
	// Header placed after some unrelated prefix.
	prefix := []byte("prefix..")
	contents := append(prefix, header(ImageMagic, 1, Rows)...)
	r := bytes.NewReader(contents)
	_, err := r.Seek(int64(len(prefix)), io.SeekStart)
	require.NoError(t, err)
	_, err = ValidateImageHeader(r)
	var truncated *TruncatedReadError
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, int64(len(prefix)+12), truncated.Offset)

	r = bytes.NewReader(append(prefix, header(LabelMagic)...))
	_, err = r.Seek(int64(len(prefix)), io.SeekStart)
	require.NoError(t, err)
	_, err = ValidateLabelHeader(r)
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, int64(len(prefix)+4), truncated.Offset)

	// Records decoded from a seeker report their absolute offset too.
	r = bytes.NewReader(labelsFile(t, 1, 2, 3)[:LabelHeaderSize+1])
	count, err := ValidateLabelHeader(r)
	require.NoError(t, err)
	dec := DecodeLabels(r, count)
	_, err = dec.Next()
	require.NoError(t, err)
	_, err = dec.Next()
	require.ErrorAs(t, err, &truncated)
	assert.Equal(t, int64(LabelHeaderSize+1), truncated.Offset)
}
