/*
 *	Copyright 2025 Rener Castro
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package idx

import (
	"io"
	"iter"

	"golang.org/x/exp/constraints"
)

// MaxIntensity is the value of a fully white pixel, it normalizes to 1.0.
const MaxIntensity = 255.0

// Normalize converts raw pixel intensities in [0, 255] to [0.0, 1.0] into dst,
// which must have at least len(raw) elements.
func Normalize[T constraints.Float](dst []T, raw []byte) {
	dst = dst[:len(raw)]
	for ii, b := range raw {
		dst[ii] = T(b) / MaxIntensity
	}
}

// ImageStream is a single-pass sequence of normalized images.
// Next returns io.EOF once exhausted.
type ImageStream interface {
	Next() ([]float32, error)
}

// LabelStream is a single-pass sequence of labels.
// Next returns io.EOF once exhausted.
type LabelStream interface {
	Next() (int32, error)
}

// ImageDecoder decodes the records of an images file, one at a time.
//
// It is single-pass: it consumes the cursor of the underlying reader, and it can't be reset.
// Once an error is returned, all following calls to Next return the same error.
type ImageDecoder struct {
	c           *cursor
	count, next uint32
	buf         [ImageSize]byte
	err         error
}

// Assert ImageDecoder is an ImageStream.
var _ ImageStream = (*ImageDecoder)(nil)

// NewImageDecoder validates the images header read from r (see ValidateImageHeader)
// and returns a decoder for its records.
//
// Validation errors are returned immediately, before any record is read.
func NewImageDecoder(r io.Reader) (*ImageDecoder, error) {
	c := newCursor(r, currentOffset(r, 0))
	header, err := validateImageHeader(c)
	if err != nil {
		return nil, err
	}
	return &ImageDecoder{c: c, count: header.Count}, nil
}

// DecodeImages returns a decoder of count image records read from r, which must be positioned
// right after a validated header.
func DecodeImages(r io.Reader, count uint32) *ImageDecoder {
	return &ImageDecoder{c: newCursor(r, currentOffset(r, ImageHeaderSize)), count: count}
}

// Count returns the total number of records the decoder yields.
func (d *ImageDecoder) Count() int { return int(d.count) }

// Position returns the index of the next record to be decoded.
func (d *ImageDecoder) Position() int { return int(d.next) }

// Next reads the next record and returns it normalized to [0.0, 1.0], as a freshly allocated
// slice of ImageSize values owned by the caller.
//
// It returns io.EOF after Count records, or a *TruncatedReadError if the file ends in the middle
// of a record.
func (d *ImageDecoder) Next() ([]float32, error) {
	raw, err := d.NextRaw()
	if err != nil {
		return nil, err
	}
	img := make([]float32, ImageSize)
	Normalize(img, raw)
	return img, nil
}

// NextRaw is like Next, but returns the raw pixel intensities.
// The returned slice is only valid until the following call to Next or NextRaw.
func (d *ImageDecoder) NextRaw() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.next >= d.count {
		d.err = io.EOF
		return nil, d.err
	}
	if err := d.c.readFull(d.buf[:], int(d.next)); err != nil {
		d.err = err
		return nil, err
	}
	d.next++
	return d.buf[:], nil
}

// All returns an iterator over the remaining images. Iteration ends at the end of the file,
// or after the first error is yielded.
func (d *ImageDecoder) All() iter.Seq2[[]float32, error] {
	return all[[]float32](d)
}

// LabelDecoder decodes the records of a labels file, one at a time.
// It has the same single-pass semantics as ImageDecoder.
type LabelDecoder struct {
	c           *cursor
	count, next uint32
	buf         [LabelSize]byte
	err         error
}

// Assert LabelDecoder is a LabelStream.
var _ LabelStream = (*LabelDecoder)(nil)

// NewLabelDecoder validates the labels header read from r (see ValidateLabelHeader)
// and returns a decoder for its records.
func NewLabelDecoder(r io.Reader) (*LabelDecoder, error) {
	c := newCursor(r, currentOffset(r, 0))
	count, err := validateLabelHeader(c)
	if err != nil {
		return nil, err
	}
	return &LabelDecoder{c: c, count: count}, nil
}

// DecodeLabels returns a decoder of count label records read from r, which must be positioned
// right after a validated header.
func DecodeLabels(r io.Reader, count uint32) *LabelDecoder {
	return &LabelDecoder{c: newCursor(r, currentOffset(r, LabelHeaderSize)), count: count}
}

// Count returns the total number of records the decoder yields.
func (d *LabelDecoder) Count() int { return int(d.count) }

// Position returns the index of the next record to be decoded.
func (d *LabelDecoder) Position() int { return int(d.next) }

// Next returns the next label, in the range [0, 255].
//
// It returns io.EOF after Count records, or a *TruncatedReadError if the file is shorter than declared.
func (d *LabelDecoder) Next() (int32, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.next >= d.count {
		d.err = io.EOF
		return 0, d.err
	}
	if err := d.c.readFull(d.buf[:], int(d.next)); err != nil {
		d.err = err
		return 0, err
	}
	d.next++
	return int32(d.buf[0]), nil
}

// All returns an iterator over the remaining labels. Iteration ends at the end of the file,
// or after the first error is yielded.
func (d *LabelDecoder) All() iter.Seq2[int32, error] {
	return all[int32](d)
}

// all adapts a Next() based stream to an iterator.
func all[T any](s interface{ Next() (T, error) }) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
