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

// Package idx reads and writes the IDX binary files used by the MNIST distribution.
//
// An IDX file is a big-endian header followed by fixed-size records. Only the two
// variants used by MNIST are supported:
//
//   - images: [magic=2051][count][rows=28][cols=28] followed by count records of 784 bytes.
//   - labels: [magic=2049][count] followed by count records of 1 byte.
//
// Headers are validated before any record is read, and records are decoded one at a time:
// nothing is kept in memory beyond the record being decoded.
package idx

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// ImageMagic identifies an IDX file of unsigned byte 3D tensors (images).
	ImageMagic uint32 = 0x00000803

	// LabelMagic identifies an IDX file of unsigned byte 1D tensors (labels).
	LabelMagic uint32 = 0x00000801

	// Rows and Cols of each MNIST image.
	Rows = 28
	Cols = 28

	// ImageSize is the number of bytes (pixels) of each image record.
	ImageSize = Rows * Cols

	// LabelSize is the number of bytes of each label record.
	LabelSize = 1

	// ImageHeaderSize and LabelHeaderSize are the byte offsets of the first record.
	ImageHeaderSize = 16
	LabelHeaderSize = 8
)

// ImageHeader holds the fields of a validated images file header.
type ImageHeader struct {
	Count      uint32
	Rows, Cols uint32
}

// namedReader attaches a name to a reader, used in error messages.
type namedReader struct {
	io.Reader
	name string
}

func (n namedReader) Name() string { return n.name }

// Named returns a reader that reports name in errors. *os.File already reports its own name,
// this is meant for in-memory readers or streams.
func Named(name string, r io.Reader) io.Reader {
	return namedReader{Reader: r, name: name}
}

// nameOf returns r.Name() if available.
func nameOf(r io.Reader) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}

// cursor tracks the read offset of a reader, to report errors precisely.
type cursor struct {
	r      io.Reader
	path   string
	offset int64
}

func newCursor(r io.Reader, offset int64) *cursor {
	return &cursor{r: r, path: nameOf(r), offset: offset}
}

// readFull reads exactly len(buf) bytes. record is reported in a TruncatedReadError (-1 for the header).
func (c *cursor) readFull(buf []byte, record int) error {
	n, err := io.ReadFull(c.r, buf)
	start := c.offset
	c.offset += int64(n)
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &TruncatedReadError{Path: c.path, Offset: start, Record: record, Want: len(buf), Got: n}
	}
	if c.path != "" {
		return errors.Wrapf(err, "idx: failed reading %d bytes from %q at offset %d", len(buf), c.path, start)
	}
	return errors.Wrapf(err, "idx: failed reading %d bytes at offset %d", len(buf), start)
}

func (c *cursor) readUint32(record int) (uint32, error) {
	var buf [4]byte
	if err := c.readFull(buf[:], record); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadUint32BE reads exactly 4 bytes from r and interprets them as an unsigned big-endian integer.
// It returns a *TruncatedReadError if fewer than 4 bytes are available.
func ReadUint32BE(r io.Reader) (uint32, error) {
	return newCursor(r, currentOffset(r, 0)).readUint32(-1)
}

// currentOffset returns the position of r if it is an io.Seeker, or fallback otherwise.
func currentOffset(r io.Reader, fallback int64) int64 {
	if s, ok := r.(io.Seeker); ok {
		if pos, err := s.Seek(0, io.SeekCurrent); err == nil {
			return pos
		}
	}
	return fallback
}

// ValidateImageHeader reads the 16 bytes header of an images file, normally positioned at its start.
//
// It returns an *InvalidMagicError if the magic number is not ImageMagic, and an
// *InvalidDimensionsError if the images are not 28x28. On success r is positioned at the
// first record.
func ValidateImageHeader(r io.Reader) (ImageHeader, error) {
	return validateImageHeader(newCursor(r, currentOffset(r, 0)))
}

func validateImageHeader(c *cursor) (header ImageHeader, err error) {
	magic, err := c.readUint32(-1)
	if err != nil {
		return ImageHeader{}, err
	}
	if magic != ImageMagic {
		return ImageHeader{}, &InvalidMagicError{Path: c.path, Want: ImageMagic, Got: magic}
	}
	for _, field := range []*uint32{&header.Count, &header.Rows, &header.Cols} {
		*field, err = c.readUint32(-1)
		if err != nil {
			return ImageHeader{}, err
		}
	}
	if header.Rows != Rows || header.Cols != Cols {
		return ImageHeader{}, &InvalidDimensionsError{
			Path: c.path, WantRows: Rows, WantCols: Cols, Rows: header.Rows, Cols: header.Cols}
	}
	return header, nil
}

// ValidateLabelHeader reads the 8 bytes header of a labels file, normally positioned at its start,
// and returns the number of labels.
//
// It returns an *InvalidMagicError if the magic number is not LabelMagic.
func ValidateLabelHeader(r io.Reader) (count uint32, err error) {
	return validateLabelHeader(newCursor(r, currentOffset(r, 0)))
}

func validateLabelHeader(c *cursor) (count uint32, err error) {
	magic, err := c.readUint32(-1)
	if err != nil {
		return 0, err
	}
	if magic != LabelMagic {
		return 0, &InvalidMagicError{Path: c.path, Want: LabelMagic, Got: magic}
	}
	return c.readUint32(-1)
}
