package mnist

import (
	"bufio"
	"math/rand"
	"os"

	"github.com/gomlx/mnistprep/pkg/data"
	"github.com/gomlx/mnistprep/pkg/idx"
	"github.com/pkg/errors"
)

// GenerateSynthetic writes a small fake dataset for the given split under baseDir, with the same
// file names as the real one, so it can be opened with OpenSplit.
//
// Sample i has label i%10, and its image is a vertical bar whose column depends on the label, with
// some noise from a random number generator seeded with seed. Useful for tests and demos without
// network access.
func GenerateSynthetic(baseDir string, split Split, count int, seed int64) error {
	baseDir, err := data.ReplaceTildeInDir(baseDir)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(baseDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", baseDir)
	}
	rng := rand.New(rand.NewSource(seed))
	images := make([][]byte, count)
	labels := make([]byte, count)
	for ii := range count {
		label := ii % NumClasses
		labels[ii] = byte(label)
		var raw Raw
		col := 4 + 2*label
		for y := 4; y < idx.Rows-4; y++ {
			raw.Set(col, y, uint8(192+rng.Intn(64)))
			raw.Set(col+1, y, uint8(rng.Intn(128)))
		}
		images[ii] = raw[:]
	}

	imagesPath, labelsPath := Files(baseDir, split)
	if err = writeFile(imagesPath, func(w *bufio.Writer) error { return idx.WriteImages(w, images) }); err != nil {
		return err
	}
	return writeFile(labelsPath, func(w *bufio.Writer) error { return idx.WriteLabels(w, labels) })
}

func writeFile(filePath string, write func(w *bufio.Writer) error) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	w := bufio.NewWriter(f)
	err = write(w)
	if err == nil {
		err = w.Flush()
	}
	if e2 := f.Close(); err == nil && e2 != nil {
		err = e2
	}
	return errors.WithMessagef(err, "writing %q", filePath)
}
