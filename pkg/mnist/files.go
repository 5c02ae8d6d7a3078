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

// Package mnist - The MNIST database of handwritten digits.
//
// It downloads and caches the distribution files, and opens them as a single-pass stream of
// normalized (image, label) samples, decoded by package idx.
package mnist

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gomlx/mnistprep/pkg/data"
	"github.com/pkg/errors"
)

const (
	// DownloadURL is the mirror from where the compressed files are fetched.
	DownloadURL = "https://storage.googleapis.com/cvdf-datasets/mnist"

	// TrainExamples and TestExamples are the number of samples of each split.
	TrainExamples = 60000
	TestExamples  = 10000

	// NumClasses is the number of digits.
	NumClasses = 10
)

// Split of the dataset.
type Split int

const (
	Train Split = iota
	Test
)

// String implements fmt.Stringer.
func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Test:
		return "test"
	}
	return fmt.Sprintf("Split(%d)", int(s))
}

// ParseSplit converts "train" or "test" (case-insensitive) to a Split.
func ParseSplit(name string) (Split, error) {
	switch strings.ToLower(name) {
	case "train":
		return Train, nil
	case "test", "t10k":
		return Test, nil
	}
	return 0, errors.Errorf("unknown MNIST split %q, valid values are \"train\" or \"test\"", name)
}

// splitFile describes one distribution file: its raw name, and the sha256 of its compressed version.
type splitFile struct {
	name   string
	gzHash string
}

var splitFiles = map[Split][2]splitFile{
	Train: {
		{"train-images-idx3-ubyte", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"},
		{"train-labels-idx1-ubyte", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"},
	},
	Test: {
		{"t10k-images-idx3-ubyte", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"},
		{"t10k-labels-idx1-ubyte", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"},
	},
}

// Files returns the paths of the decompressed images and labels files of the split under baseDir.
func Files(baseDir string, split Split) (imagesPath, labelsPath string) {
	files := splitFiles[split]
	return path.Join(baseDir, files[0].name), path.Join(baseDir, files[1].name)
}

// TrainFiles returns the paths of the training images and labels files under baseDir.
func TrainFiles(baseDir string) (imagesPath, labelsPath string) { return Files(baseDir, Train) }

// TestFiles returns the paths of the test images and labels files under baseDir.
func TestFiles(baseDir string) (imagesPath, labelsPath string) { return Files(baseDir, Test) }

// Download the MNIST files to baseDir, if they are not there yet, and decompress them.
//
// The compressed files are verified against their known sha256 and kept next to the decompressed
// ones, so later calls are no-ops.
func Download(baseDir string) error {
	return downloadFrom(DownloadURL, baseDir, true, true)
}

func downloadFrom(baseURL, baseDir string, verify, showProgressBar bool) error {
	baseDir, err := data.ReplaceTildeInDir(baseDir)
	if err != nil {
		return err
	}
	for _, split := range []Split{Train, Test} {
		for _, file := range splitFiles[split] {
			gzName := file.name + ".gz"
			fileURL, err := url.JoinPath(baseURL, gzName)
			if err != nil {
				return errors.Wrapf(err, "invalid download URL %q", baseURL)
			}
			var checkHash string
			if verify {
				checkHash = file.gzHash
			}
			gzPath := path.Join(baseDir, gzName)
			if err := data.DownloadIfMissing(fileURL, gzPath, checkHash, showProgressBar); err != nil {
				return errors.WithMessagef(err, "failed to download MNIST %s file %q", split, gzName)
			}
			if err := data.GunzipIfMissing(gzPath, path.Join(baseDir, file.name)); err != nil {
				return errors.WithMessagef(err, "failed to decompress MNIST %s file %q", split, gzName)
			}
		}
	}
	return nil
}
