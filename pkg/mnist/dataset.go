/*
 *	Copyright 2023 Rener Castro
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

package mnist

import (
	"bufio"
	"io"
	"iter"
	"os"

	"github.com/gomlx/mnistprep/pkg/idx"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultBufferSize used to read each of the files.
const DefaultBufferSize = 64 * 1024

type options struct {
	allowCountMismatch bool
	bufferSize         int
}

// Option configures Open.
type Option func(o *options)

// WithAllowCountMismatch makes Open accept images and labels files with different number of items.
// The dataset then silently stops at the end of the shorter one.
func WithAllowCountMismatch() Option {
	return func(o *options) { o.allowCountMismatch = true }
}

// WithBufferSize sets the read buffer size used for each file. If <= 0, reads go straight to the file.
func WithBufferSize(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Dataset is a single-pass stream of (image, label) samples read from a pair of IDX files.
//
// It owns both file handles: they are released by Close, which is safe to call more than once,
// or automatically at the end of an iteration with All.
type Dataset struct {
	imagesPath, labelsPath string
	imagesFile, labelsFile *os.File
	images                 *idx.ImageDecoder
	labels                 *idx.LabelDecoder
	pairs                  *idx.Pairs
	count                  int
}

// OpenSplit opens the decompressed files of the given split under baseDir (see Download).
func OpenSplit(baseDir string, split Split, opts ...Option) (*Dataset, error) {
	imagesPath, labelsPath := Files(baseDir, split)
	return Open(imagesPath, labelsPath, opts...)
}

// Open the images and labels files, validate their headers and return a Dataset that yields
// their samples paired by position.
//
// Header errors (see idx.InvalidMagicError, idx.InvalidDimensionsError, idx.TruncatedReadError)
// are returned before any record is decoded. Files with different number of items are rejected
// with an *idx.CountMismatchError, unless WithAllowCountMismatch is given.
//
// On error, any file already opened is closed.
func Open(imagesPath, labelsPath string, opts ...Option) (ds *Dataset, err error) {
	o := options{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	ds = &Dataset{imagesPath: imagesPath, labelsPath: labelsPath}
	defer func() {
		if err != nil {
			_ = ds.Close()
			ds = nil
		}
	}()

	var r io.Reader
	ds.imagesFile, r, err = openFile(imagesPath, o.bufferSize)
	if err != nil {
		return
	}
	ds.images, err = idx.NewImageDecoder(r)
	if err != nil {
		return
	}
	ds.labelsFile, r, err = openFile(labelsPath, o.bufferSize)
	if err != nil {
		return
	}
	ds.labels, err = idx.NewLabelDecoder(r)
	if err != nil {
		return
	}

	ds.count = min(ds.images.Count(), ds.labels.Count())
	if ds.images.Count() != ds.labels.Count() {
		mismatch := &idx.CountMismatchError{
			ImagesPath: imagesPath, LabelsPath: labelsPath,
			Images: uint32(ds.images.Count()), Labels: uint32(ds.labels.Count()),
		}
		if !o.allowCountMismatch {
			err = mismatch
			return
		}
		klog.Warningf("%v: only the first %d samples will be used", mismatch, ds.count)
	}
	ds.pairs = idx.Zip(ds.images, ds.labels)
	klog.V(1).Infof("opened MNIST dataset %q / %q with %d samples", imagesPath, labelsPath, ds.count)
	return
}

func openFile(filePath string, bufferSize int) (*os.File, io.Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open MNIST file")
	}
	if bufferSize <= 0 {
		return f, f, nil
	}
	return f, idx.Named(f.Name(), bufio.NewReaderSize(f, bufferSize)), nil
}

// ImagesPath returns the path of the images file.
func (ds *Dataset) ImagesPath() string { return ds.imagesPath }

// LabelsPath returns the path of the labels file.
func (ds *Dataset) LabelsPath() string { return ds.labelsPath }

// Count returns the number of samples the dataset yields in total.
func (ds *Dataset) Count() int { return ds.count }

// Position returns the index of the next sample.
func (ds *Dataset) Position() int { return ds.images.Position() }

// Next returns the next sample, or io.EOF once all samples have been read.
// Files are not closed automatically, call Close when done.
func (ds *Dataset) Next() (idx.Sample, error) {
	if ds.pairs == nil {
		return idx.Sample{}, errors.New("MNIST dataset is closed")
	}
	return ds.pairs.Next()
}

// NextRaw returns the raw pixels of the next image along with its label.
// It doesn't normalize the image, which is convenient for rendering.
func (ds *Dataset) NextRaw() (raw Raw, label int32, err error) {
	if ds.pairs == nil {
		return raw, 0, errors.New("MNIST dataset is closed")
	}
	pixels, err := ds.images.NextRaw()
	if err != nil {
		return raw, 0, err
	}
	label, err = ds.labels.Next()
	if err != nil {
		return Raw{}, 0, err
	}
	copy(raw[:], pixels)
	return raw, label, nil
}

// All returns an iterator over the remaining samples.
//
// The dataset is closed when the iteration ends, for whatever reason: all samples consumed,
// the loop exited early or an error was yielded.
func (ds *Dataset) All() iter.Seq2[idx.Sample, error] {
	return func(yield func(idx.Sample, error) bool) {
		defer func() { _ = ds.Close() }()
		if ds.pairs == nil {
			yield(idx.Sample{}, errors.New("MNIST dataset is closed"))
			return
		}
		for sample, err := range ds.pairs.All() {
			if !yield(sample, err) {
				return
			}
		}
	}
}

// Batch of samples, as yielded by Dataset.Yield.
type Batch struct {
	// Images has one normalized image of idx.ImageSize values per sample.
	Images [][]float32

	// Labels has one label per sample.
	Labels []int32
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int { return len(b.Labels) }

// Yield reads the next batch of up to batchSize samples.
//
// The last batch may be smaller than batchSize. Once the dataset is exhausted it returns io.EOF.
// Samples already read when an error happens are not returned.
func (ds *Dataset) Yield(batchSize int) (batch *Batch, err error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("invalid batchSize %d, it must be > 0", batchSize)
	}
	n := min(batchSize, ds.count-ds.Position())
	if n <= 0 {
		return nil, io.EOF
	}
	batch = &Batch{Images: make([][]float32, 0, n), Labels: make([]int32, 0, n)}
	for range n {
		sample, err := ds.Next()
		if err != nil {
			return nil, err
		}
		batch.Images = append(batch.Images, sample.Image)
		batch.Labels = append(batch.Labels, sample.Label)
	}
	return batch, nil
}

// Close releases the files. It is safe to call Close more than once.
func (ds *Dataset) Close() error {
	var firstErr error
	for _, f := range []**os.File{&ds.imagesFile, &ds.labelsFile} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close %q", (*f).Name())
		}
		*f = nil
	}
	ds.pairs = nil
	return firstErr
}
