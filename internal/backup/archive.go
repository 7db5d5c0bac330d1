package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/natefinch/atomic"

	"devsetup/internal/logger"
)

// Archive describes one tar.gz written by a backup run.
type Archive struct {
	Path    string
	Entries int
	Bytes   int64
}

// writeTarGz archives paths into dst. Entry names are relative to base so the
// archive extracts with `tar -xzf <file> -C $HOME`. Missing paths are skipped
// with a warning; unreadable files inside a tree are skipped the same way.
// The file is written through a temporary name and renamed on success.
func writeTarGz(dst, base string, paths []string) (Archive, error) {
	pr, pw := io.Pipe()
	result := Archive{Path: dst}
	done := make(chan struct{})

	go func() {
		defer close(done)
		gz := gzip.NewWriter(pw)
		tw := tar.NewWriter(gz)
		var err error
		for _, p := range paths {
			if err = addPath(tw, base, p, &result.Entries); err != nil {
				break
			}
		}
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	counter := &countingReader{r: pr}
	err := atomic.WriteFile(dst, counter)
	_ = pr.CloseWithError(err)
	<-done
	if err != nil {
		return Archive{}, fmt.Errorf("write %s: %w", dst, err)
	}
	result.Bytes = counter.n
	return result, nil
}

func addPath(tw *tar.Writer, base, root string, entries *int) error {
	if _, err := os.Lstat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("[WARN] %s does not exist; skipping\n", root)
			return nil
		}
		return err
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("[WARN] Skipping %s: %v\n", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logger.Warn("[WARN] Skipping %s: %v\n", path, err)
			return nil
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				logger.Warn("[WARN] Skipping symlink %s: %v\n", path, err)
				return nil
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			logger.Debug("[DEBUG] Skipping special file %s\n", path)
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = entryName(base, path)
		if info.IsDir() {
			hdr.Name += "/"
		}

		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				logger.Warn("[WARN] Skipping %s: %v\n", path, err)
				return nil
			}
			defer f.Close()
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if _, err := io.Copy(tw, f); err != nil {
				return fmt.Errorf("archive %s: %w", path, err)
			}
		} else if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		*entries++
		return nil
	})
}

// entryName makes path relative to base, falling back to the path without its
// leading separator for files outside base.
func entryName(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

// listTarGz reads every entry of a gzip-compressed tar stream and returns the
// entry count. A truncated or corrupt archive returns an error.
func listTarGz(r io.Reader) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	n := 0
	for {
		_, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read tar entry %d: %w", n+1, err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return n, fmt.Errorf("read tar entry %d: %w", n+1, err)
		}
		n++
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
