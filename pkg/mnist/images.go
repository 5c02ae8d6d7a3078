package mnist

import (
	"io"
	"iter"
	"os"

	"github.com/gomlx/mnistprep/pkg/idx"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Images is a single-pass stream of normalized images read from an images file alone,
// for uses that don't need labels (e.g. autoencoders).
//
// It owns the file handle: it is released by Close, which is safe to call more than once,
// or automatically at the end of an iteration with All.
type Images struct {
	path    string
	file    *os.File
	decoder *idx.ImageDecoder
}

// OpenSplitImages opens only the decompressed images file of the given split under baseDir.
func OpenSplitImages(baseDir string, split Split, opts ...Option) (*Images, error) {
	imagesPath, _ := Files(baseDir, split)
	return OpenImages(imagesPath, opts...)
}

// OpenImages opens the images file and validates its header. On error the file is closed.
//
// Of the options, only WithBufferSize applies.
func OpenImages(imagesPath string, opts ...Option) (images *Images, err error) {
	o := options{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	images = &Images{path: imagesPath}
	defer func() {
		if err != nil {
			_ = images.Close()
			images = nil
		}
	}()
	var r io.Reader
	images.file, r, err = openFile(imagesPath, o.bufferSize)
	if err != nil {
		return
	}
	images.decoder, err = idx.NewImageDecoder(r)
	if err != nil {
		return
	}
	klog.V(1).Infof("opened MNIST images %q with %d images", imagesPath, images.decoder.Count())
	return
}

// Path returns the path of the images file.
func (images *Images) Path() string { return images.path }

// Count returns the number of images the stream yields in total.
func (images *Images) Count() int { return images.decoder.Count() }

// Position returns the index of the next image.
func (images *Images) Position() int { return images.decoder.Position() }

// Next returns the next normalized image, or io.EOF once all images have been read.
// The file is not closed automatically, call Close when done.
func (images *Images) Next() ([]float32, error) {
	if images.file == nil {
		return nil, errors.New("MNIST images file is closed")
	}
	return images.decoder.Next()
}

// NextRaw returns the raw pixels of the next image.
func (images *Images) NextRaw() (raw Raw, err error) {
	if images.file == nil {
		return raw, errors.New("MNIST images file is closed")
	}
	pixels, err := images.decoder.NextRaw()
	if err != nil {
		return Raw{}, err
	}
	copy(raw[:], pixels)
	return raw, nil
}

// All returns an iterator over the remaining images.
//
// The file is closed when the iteration ends, for whatever reason: all images consumed,
// the loop exited early or an error was yielded.
func (images *Images) All() iter.Seq2[[]float32, error] {
	return func(yield func([]float32, error) bool) {
		defer func() { _ = images.Close() }()
		if images.file == nil {
			yield(nil, errors.New("MNIST images file is closed"))
			return
		}
		for img, err := range images.decoder.All() {
			if !yield(img, err) {
				return
			}
		}
	}
}

// Close releases the file. It is safe to call Close more than once.
func (images *Images) Close() error {
	if images.file == nil {
		return nil
	}
	err := images.file.Close()
	images.file = nil
	return errors.Wrapf(err, "failed to close %q", images.path)
}
