package idx

import "iter"

// Sample is one decoded (image, label) pair.
type Sample struct {
	// Index of the record in both files.
	Index int

	// Image holds ImageSize pixel intensities normalized to [0.0, 1.0], row-major.
	Image []float32

	// Label in the range [0, 255], nominally the digit [0, 9].
	Label int32
}

// Pairs yields images and labels in lockstep, paired by position.
type Pairs struct {
	images ImageStream
	labels LabelStream
	next   int
	err    error
}

// Zip pairs the images and labels streams by position.
//
// Pairs stops (returns io.EOF) as soon as either stream is exhausted. It doesn't check that both
// have the same length: see CountMismatchError and mnist.Open for that.
func Zip(images ImageStream, labels LabelStream) *Pairs {
	return &Pairs{images: images, labels: labels}
}

// Next returns the next pair. Images are advanced first, so once images are exhausted
// the labels stream is not read any further.
func (p *Pairs) Next() (Sample, error) {
	if p.err != nil {
		return Sample{}, p.err
	}
	index := p.next
	if positioned, ok := p.images.(interface{ Position() int }); ok {
		// The images stream may have been advanced outside of Pairs.
		index = positioned.Position()
	}
	img, err := p.images.Next()
	if err != nil {
		p.err = err
		return Sample{}, err
	}
	label, err := p.labels.Next()
	if err != nil {
		p.err = err
		return Sample{}, err
	}
	sample := Sample{Index: index, Image: img, Label: label}
	p.next = index + 1
	return sample, nil
}

// All returns an iterator over the remaining pairs.
// Iteration ends when either stream is exhausted, or after the first error is yielded.
func (p *Pairs) All() iter.Seq2[Sample, error] {
	return all[Sample](p)
}
