// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package fileutil holds file helpers shared by the transfer engine, the
// toolkit deployer and the status monitor.
package fileutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	fp "path/filepath"
	"regexp"
	"time"

	"github.com/purecloudlabs/isomaker/pkg/log"
)

var (
	xzId = [6]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00} // fd 37 7a 58 5a 00 -> xz archive
)

// return n bytes from beginning of file
func ReadHeader(fname string, n int64) (head []byte, err error) {
	f, err := os.Open(fname)
	if err != nil {
		return
	}
	defer f.Close()
	head, err = io.ReadAll(io.LimitReader(f, n))
	if int64(len(head)) < n {
		return nil, io.ErrUnexpectedEOF
	}
	return
}

// checks for XZ header
func IsXZ(fname string) bool {
	head, err := ReadHeader(fname, int64(len(xzId)))
	if err != nil {
		log.Logf("failed to read head bytes from %s: %s", fname, err)
		return false
	}
	return HasXZMagic(head)
}

func HasXZMagic(head []byte) bool { return bytes.HasPrefix(head, xzId[:]) }

var driveRoot = regexp.MustCompile(`^[A-Za-z]:[\\/]?$`)

// IsDeviceRoot is true for paths naming the root of a volume: "E:", "E:\\",
// "/". Such paths must never be created.
func IsDeviceRoot(path string) bool {
	if driveRoot.MatchString(path) {
		return true
	}
	return path == "/" || path == "\\"
}

// Creates dir and any missing parents, unless dir is a device root - which
// must already exist.
func EnsureDir(dir string) error {
	if IsDeviceRoot(dir) {
		if _, err := os.Stat(dir); err != nil {
			return err
		}
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// Returns up to the last n bytes of the named file, decoded as text.
func Tail(fname string, n int64) (string, error) {
	f, err := os.Open(fname)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if fi.Size() > n {
		if _, err = f.Seek(-n, io.SeekEnd); err != nil {
			return "", err
		}
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return DecodeText(buf), nil
}

// IOCopy is like io.Copy, but calls progressFunc after every chunk with the
// running total.
func IOCopy(dst io.Writer, src io.Reader, progressFunc func(int64)) (written int64, err error) {
	buf := make([]byte, 32*1024)
	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
				if progressFunc != nil {
					progressFunc(written)
				}
			}
			if ew != nil {
				err = ew
				break
			}
			if nr != nw {
				err = io.ErrShortWrite
				break
			}
		}
		if er == io.EOF {
			break
		}
		if er != nil {
			err = er
			break
		}
	}
	return written, err
}

// Copy a file. Assumes any dirs have already been created. Copies mode and
// mtime.
func CopyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer out.Close()
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if n < info.Size() {
		return fmt.Errorf("copied %d bytes, expected %d", n, info.Size())
	}
	if err = out.Chmod(info.Mode()); err != nil {
		log.Logf("error %s setting mode of %s", err, dest)
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// CopyDir copies the regular files under src into dest, recreating the
// directory structure. Returns the number of files copied.
func CopyDir(src, dest string) (int, error) {
	count := 0
	err := fp.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := fp.Rel(src, path)
		if err != nil {
			return err
		}
		target := fp.Join(dest, rel)
		if info.IsDir() {
			return EnsureDir(target)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if err = CopyFile(path, target); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// Renames old in same dir, using newPfx + random suffix. Used to move a
// corrupt store out of the way.
func RenameUnique(old, newPfx string) (success bool) {
	newname, err := os.MkdirTemp(fp.Dir(old), newPfx)
	if err != nil {
		log.Logf("error %s creating temp name for %s", err, old)
		return false
	}
	if err = os.Remove(newname); err != nil {
		log.Logf("error %s deleting temp dir %s", err, newname)
	}
	if err = os.Rename(old, newname); err != nil {
		log.Logf("error %s renaming %s to %s", err, old, newname)
	}
	return err == nil
}

// WaitFor waits for a file to appear or times out. Returns true if file appears,
// false otherwise. Sleeps .1s between checks.
func WaitFor(path string, timeout time.Duration) (found bool) {
	stop := make(chan struct{})
	t := time.AfterFunc(timeout, func() { close(stop) })
	defer t.Stop()
	return WaitForChan(path, stop)
}

// WaitForChan is like WaitFor, but returns no later than when stop chan is closed
func WaitForChan(path string, stop <-chan struct{}) (found bool) {
	for {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			return true
		}
		select {
		case <-stop:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}
