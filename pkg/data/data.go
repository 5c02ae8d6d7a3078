/*
 *	Copyright 2023 Jan Pfeifer
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

// Package data holds the download-and-cache tools used to fetch dataset files:
// downloading with a progress bar, checksum validation and decompression.
package data

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to stat %q", path)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` refers to an unknown user (e.g: `~unknown/...`).
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 || dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		userName, _, _ = strings.Cut(dir[1:], "/")
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return path.Join(usr.HomeDir, dir[1+len(userName):]), nil
}

// ValidateChecksum verifies that the sha256 of the file in the given path matches checkHash
// (hex encoded). If it doesn't, the file is removed (!) and an error is returned.
func ValidateChecksum(filePath, checkHash string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q to validate checksum", filePath)
	}
	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	_ = f.Close() // Discard reading error on Close.
	if err != nil {
		return errors.Wrapf(err, "failed reading %q to validate checksum", filePath)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	if fileHash == strings.ToLower(checkHash) {
		return nil
	}
	err = errors.Errorf("file %q sha256 hash is %q, but expected %q, deleting file",
		filePath, fileHash, checkHash)
	if e2 := os.Remove(filePath); e2 != nil {
		klog.Errorf("Failed to remove %q, which failed checksum test. Please remove it. %+v", filePath, e2)
	}
	return err
}

// copyBytesBar copies bytes to an io.Writer while displaying a progressbar.
// It requires knowing the contentLength.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	amountWritten                 int64
	barUnit, numUnits, addedUnits int64
}

func newCopyBytesBar(w io.Writer, description string, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w, barUnit: 1}
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions64(bar.numUnits,
		progressbar.OptionSetDescription(fmt.Sprintf("%s (%s)", description, humanize.IBytes(uint64(contentLength)))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: ".",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return bar
}

// Write implements io.Writer, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add64(toUnits - bar.addedUnits)
		bar.addedUnits = toUnits
	}
	return
}

// CopyWithProgressBar is similar to io.Copy, but displays a progress bar with the amount
// of data copied.
//
// It requires knowing the amount of data to copy up-front: if contentLength <= 0 it falls back to io.Copy.
func CopyWithProgressBar(dst io.Writer, src io.Reader, description string, contentLength int64) (n int64, err error) {
	if contentLength <= 0 {
		return io.Copy(dst, src)
	}
	bar := newCopyBytesBar(dst, description, contentLength)
	n, err = io.Copy(bar, src)
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add64(bar.numUnits - bar.addedUnits)
	}
	_ = bar.bar.Close()
	fmt.Println()
	return
}

// Download file from url and save at given path. It attempts to create the directory
// if it doesn't yet exist.
//
// The contents are first written to a temporary file in the same directory, and only renamed to
// filePath once the download completes, so an interrupted download never leaves a partial file behind.
func Download(url, filePath string, showProgressBar bool) (size int64, err error) {
	filePath, err = ReplaceTildeInDir(filePath)
	if err != nil {
		return 0, err
	}
	dir := path.Dir(filePath)
	if err = os.MkdirAll(dir, 0777); err != nil {
		return 0, errors.Wrapf(err, "failed to create the directory for the path %q", dir)
	}

	resp, err := http.Get(url)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: bad status code %d (%s)", url, resp.StatusCode, resp.Status)
	}

	tmpFile, err := os.CreateTemp(dir, path.Base(filePath)+".*.partial")
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating temporary file in %q", dir)
	}
	defer func() {
		if err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpFile.Name())
		}
	}()
	if showProgressBar {
		size, err = CopyWithProgressBar(tmpFile, resp.Body, path.Base(filePath), resp.ContentLength)
	} else {
		size, err = io.Copy(tmpFile, resp.Body)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	if err = tmpFile.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", tmpFile.Name())
	}
	if err = os.Rename(tmpFile.Name(), filePath); err != nil {
		return 0, errors.Wrapf(err, "failed moving download to %q", filePath)
	}
	klog.V(1).Infof("downloaded %s from %q to %q", humanize.IBytes(uint64(size)), url, filePath)
	return size, nil
}

// DownloadIfMissing will check if the path exists already, and if not it will download the file
// from the given URL.
//
// If checkHash is provided, it checks that the file has the hash or fail.
func DownloadIfMissing(url, filePath, checkHash string, showProgressBar bool) error {
	filePath, err := ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	exists, err := FileExists(filePath)
	if err != nil {
		return err
	}
	if !exists {
		klog.Infof("Downloading %s ...", url)
		if _, err = Download(url, filePath, showProgressBar); err != nil {
			return err
		}
	} else {
		klog.V(1).Infof("using cached %q", filePath)
	}
	if checkHash == "" {
		return nil
	}
	return ValidateChecksum(filePath, checkHash)
}

// GunzipIfMissing decompresses gzPath into targetPath, unless targetPath already exists.
// Like Download, the target only appears once fully written.
func GunzipIfMissing(gzPath, targetPath string) (err error) {
	exists, err := FileExists(targetPath)
	if err != nil || exists {
		return err
	}
	src, err := os.Open(gzPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", gzPath)
	}
	defer func() { _ = src.Close() }()
	reader, err := gzip.NewReader(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read gzip header of %q", gzPath)
	}
	defer func() { _ = reader.Close() }()

	tmpFile, err := os.CreateTemp(path.Dir(targetPath), path.Base(targetPath)+".*.partial")
	if err != nil {
		return errors.Wrapf(err, "failed creating temporary file for %q", targetPath)
	}
	defer func() {
		if err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpFile.Name())
		}
	}()
	n, err := io.Copy(tmpFile, reader)
	if err != nil {
		return errors.Wrapf(err, "failed decompressing %q", gzPath)
	}
	if err = tmpFile.Close(); err != nil {
		return errors.Wrapf(err, "failed closing %q", tmpFile.Name())
	}
	if err = os.Rename(tmpFile.Name(), targetPath); err != nil {
		return errors.Wrapf(err, "failed moving decompressed file to %q", targetPath)
	}
	klog.V(1).Infof("decompressed %q to %q (%s)", gzPath, targetPath, humanize.IBytes(uint64(n)))
	return nil
}
