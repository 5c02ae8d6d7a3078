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

// mnistprep downloads, validates and inspects the MNIST dataset.
//
//  1. With `mnistprep --download`: downloads and decompresses the dataset into --data.
//  2. With `mnistprep --synthetic=100`: writes a small fake dataset instead, no network needed.
//  3. With `mnistprep --inspect`: decodes the whole --split and prints a summary (--json for JSON).
//  4. With `mnistprep --show=N`: renders sample N in the terminal, --png=file.png also saves it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/mnistprep/pkg/data"
	"github.com/gomlx/mnistprep/pkg/mnist"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagDataDir   = flag.String("data", "~/tmp/mnist", "Directory to cache downloaded dataset.")
	flagDownload  = flag.Bool("download", false, "Download and decompress the dataset, if not there yet.")
	flagSynthetic = flag.Int("synthetic", 0, "If > 0, write a synthetic dataset with this many samples for --split, instead of downloading.")
	flagSplit     = flag.String("split", "train", "Split to use: \"train\" or \"test\".")
	flagInspect   = flag.Bool("inspect", false, "Decode the whole split and print a summary.")
	flagJSON      = flag.Bool("json", false, "Print the --inspect summary as JSON.")
	flagShow      = flag.Int("show", -1, "If >= 0, render the sample with this index in the terminal.")
	flagPNG       = flag.String("png", "", "If set with --show, also save the sample image to this file.")
	flagScale     = flag.Int("scale", 4, "Scale factor used by --png.")
	flagAllowDiff = flag.Bool("allow_count_mismatch", false, "Accept images and labels files with different number of items.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	err := exceptions.TryCatch[error](func() {
		split := must.M1(mnist.ParseSplit(*flagSplit))
		var didSomething bool
		if *flagDownload {
			must.M(mnist.Download(*flagDataDir))
			klog.Infof("Data downloaded in %s", *flagDataDir)
			didSomething = true
		}
		if *flagSynthetic > 0 {
			must.M(mnist.GenerateSynthetic(*flagDataDir, split, *flagSynthetic, 0))
			klog.Infof("Synthetic %s split with %d samples written to %s", split, *flagSynthetic, *flagDataDir)
			didSomething = true
		}
		if *flagInspect {
			must.M(inspect(split))
			didSomething = true
		}
		if *flagShow >= 0 {
			must.M(show(split, *flagShow))
			didSomething = true
		}
		if !didSomething {
			klog.Info("exit: usage --download, --synthetic, --inspect and/or --show, optional --data and --split")
		}
	})
	if err != nil {
		klog.Errorf("Error:\n%+v", err)
		os.Exit(1)
	}
}

func openOptions() []mnist.Option {
	var opts []mnist.Option
	if *flagAllowDiff {
		opts = append(opts, mnist.WithAllowCountMismatch())
	}
	return opts
}

func dataDir() string {
	dir, err := data.ReplaceTildeInDir(*flagDataDir)
	must.M(err)
	return dir
}

func inspect(split mnist.Split) error {
	ds, err := mnist.OpenSplit(dataDir(), split, openOptions()...)
	if err != nil {
		return err
	}
	summary, err := mnist.Summarize(ds)
	if err != nil {
		return err
	}
	if *flagJSON {
		return summary.WriteJSON(os.Stdout)
	}
	fmt.Print(summary.Table())
	return nil
}

func show(split mnist.Split, index int) error {
	ds, err := mnist.OpenSplit(dataDir(), split, openOptions()...)
	if err != nil {
		return err
	}
	defer func() { _ = ds.Close() }()
	if index >= ds.Count() {
		return errors.Errorf("sample %d requested, but %s split only has %d samples", index, split, ds.Count())
	}
	for range index {
		if _, _, err = ds.NextRaw(); err != nil {
			return err
		}
	}
	raw, label, err := ds.NextRaw()
	if err != nil {
		return err
	}
	fmt.Printf("%s sample #%d, label %d:\n%s", split, index, label, render(&raw))
	if *flagPNG != "" {
		if err = mnist.SaveImage(&raw, *flagPNG, *flagScale); err != nil {
			return err
		}
		klog.Infof("Saved sample #%d to %s", index, *flagPNG)
	}
	return nil
}
