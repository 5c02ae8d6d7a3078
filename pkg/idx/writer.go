package idx

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// WriteImages writes an images IDX file with the given records, each one with exactly ImageSize bytes.
func WriteImages(w io.Writer, images [][]byte) error {
	header := [4]uint32{ImageMagic, uint32(len(images)), Rows, Cols}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return errors.Wrap(err, "idx: failed writing images header")
	}
	for ii, img := range images {
		if len(img) != ImageSize {
			return errors.Errorf("idx: image #%d has %d bytes, expected %d", ii, len(img), ImageSize)
		}
		if _, err := w.Write(img); err != nil {
			return errors.Wrapf(err, "idx: failed writing image #%d", ii)
		}
	}
	return nil
}

// WriteLabels writes a labels IDX file with the given labels.
func WriteLabels(w io.Writer, labels []byte) error {
	header := [2]uint32{LabelMagic, uint32(len(labels))}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return errors.Wrap(err, "idx: failed writing labels header")
	}
	if _, err := w.Write(labels); err != nil {
		return errors.Wrap(err, "idx: failed writing labels")
	}
	return nil
}
