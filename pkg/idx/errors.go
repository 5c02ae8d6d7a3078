package idx

import (
	"fmt"
)

// TruncatedReadError is returned when fewer bytes are available than the format requires,
// either while reading the header or a record.
type TruncatedReadError struct {
	// Path of the file, if known.
	Path string

	// Offset in bytes from the start of the file where the short read started.
	Offset int64

	// Record is the index of the record being read, or -1 if the header was being read.
	Record int

	// Want is the number of bytes required, Got the number actually read.
	Want, Got int
}

// Error implements error.
func (e *TruncatedReadError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("idx: truncated header in %s at offset %d: wanted %d bytes, got %d",
			displayPath(e.Path), e.Offset, e.Want, e.Got)
	}
	return fmt.Sprintf("idx: truncated record #%d in %s at offset %d: wanted %d bytes, got %d",
		e.Record, displayPath(e.Path), e.Offset, e.Want, e.Got)
}

// InvalidMagicError is returned when the magic number doesn't match the expected file type.
// Usually it means the images and labels files were swapped, or the file is corrupted.
type InvalidMagicError struct {
	Path      string
	Want, Got uint32
}

// Error implements error.
func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("idx: invalid magic number %d (0x%08x) in %s, expected %d (0x%08x)",
		e.Got, e.Got, displayPath(e.Path), e.Want, e.Want)
}

// InvalidDimensionsError is returned when the image file declares dimensions other than 28x28.
type InvalidDimensionsError struct {
	Path               string
	WantRows, WantCols uint32
	Rows, Cols         uint32
}

// Error implements error.
func (e *InvalidDimensionsError) Error() string {
	return fmt.Sprintf("idx: invalid image file %s: expected %dx%d images, found %dx%d",
		displayPath(e.Path), e.WantRows, e.WantCols, e.Rows, e.Cols)
}

// CountMismatchError is returned when an images file and a labels file meant to be paired
// declare different number of items.
type CountMismatchError struct {
	ImagesPath, LabelsPath string
	Images, Labels         uint32
}

// Error implements error.
func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("idx: images file %s has %d items but labels file %s has %d items",
		displayPath(e.ImagesPath), e.Images, displayPath(e.LabelsPath), e.Labels)
}

func displayPath(path string) string {
	if path == "" {
		return "<unnamed>"
	}
	return fmt.Sprintf("%q", path)
}
