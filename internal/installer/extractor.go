package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/natefinch/atomic"
	"github.com/xi2/xz"

	"devsetup/internal/logger"
)

// ExtractAndInstall extracts an archive into work, picks the executable for
// tool and installs it into the bin directory. It returns the installed path.
func (in *Installer) ExtractAndInstall(src, work, tool string) (string, error) {
	if err := ExtractArchive(src, work); err != nil {
		return "", err
	}
	bin, err := findExecutable(work, tool)
	if err != nil {
		return "", err
	}
	return in.installBinary(bin, tool)
}

// installBinary copies bin into the bin directory under the tool name.
func (in *Installer) installBinary(bin, tool string) (string, error) {
	if err := os.MkdirAll(in.cfg.BinDir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", in.cfg.BinDir, err)
	}
	name := tool
	if strings.HasSuffix(strings.ToLower(bin), ".exe") {
		name += ".exe"
	}
	dst := filepath.Join(in.cfg.BinDir, name)
	if err := copyBinary(bin, dst); err != nil {
		return "", fmt.Errorf("install %s: %w", dst, err)
	}
	logger.Debug("[DEBUG] Installed %s to %s\n", filepath.Base(bin), dst)
	return dst, nil
}

// IsArchive reports whether name has an extension ExtractArchive handles.
func IsArchive(name string) bool {
	return hasAnySuffix(strings.ToLower(name), append(archiveSuffixes, ".tar"))
}

// ExtractArchive routes to the appropriate extraction function based on the archive type.
func ExtractArchive(src, dest string) error {
	name := strings.ToLower(src)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	switch {
	case strings.HasSuffix(name, ".zip"):
		logger.Debug("[DEBUG] Extracting zip archive %s\n", src)
		return extractZip(src, dest)
	case strings.HasSuffix(name, ".7z"):
		logger.Debug("[DEBUG] Extracting 7z archive %s\n", src)
		return extract7z(src, dest)
	case hasAnySuffix(name, []string{".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".txz"}):
		logger.Debug("[DEBUG] Extracting tar archive %s\n", src)
		return extractTarArchive(src, dest)
	default:
		return fmt.Errorf("unsupported archive format: %s", src)
	}
}

// safeJoin resolves an archive entry name under dest and rejects entries that
// would escape it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractTarArchive handles tar and compressed tar variants.
func extractTarArchive(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	name := strings.ToLower(src)
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gr.Close()
		reader = gr
	case strings.HasSuffix(name, ".tar.bz2"):
		reader = bzip2.NewReader(f)
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		xzr, err := xz.NewReader(f, 0)
		if err != nil {
			return err
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			logger.Debug("[DEBUG] Skipping %s (type %c)\n", hdr.Name, hdr.Typeflag)
		}
	}
}

// extractZip extracts a .zip archive.
func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// extract7z handles .7z extraction using the sevenzip library.
func extract7z(src, dest string) error {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

var execMagic = [][]byte{
	{0x7f, 'E', 'L', 'F'},    // ELF
	{0xcf, 0xfa, 0xed, 0xfe}, // Mach-O 64-bit
	{0xce, 0xfa, 0xed, 0xfe}, // Mach-O 32-bit
	{0xca, 0xfe, 0xba, 0xbe}, // Mach-O universal
	{'M', 'Z'},               // PE
}

// isExecutable checks the permission bits, then the file header.
func isExecutable(path string, mode os.FileMode) bool {
	if !mode.IsRegular() {
		return false
	}
	if mode.Perm()&0111 != 0 {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	for _, magic := range execMagic {
		if n >= len(magic) && bytes.Equal(head[:len(magic)], magic) {
			return true
		}
	}
	return false
}

// findExecutable scans root for the binary of tool. An exact name match wins,
// then a name starting with the tool, then the only executable in the tree.
func findExecutable(root, tool string) (string, error) {
	logger.Debug("[DEBUG] Scanning directory for executables: %s\n", root)
	var executables []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logger.Debug("[DEBUG] Failed to get file info for %s: %v\n", path, err)
			return nil
		}
		if isExecutable(path, info.Mode()) {
			executables = append(executables, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(executables) == 0 {
		return "", fmt.Errorf("no executables found in %s", root)
	}
	sort.Strings(executables)

	tool = strings.ToLower(tool)
	for _, p := range executables {
		base := strings.ToLower(filepath.Base(p))
		if base == tool || base == tool+".exe" {
			return p, nil
		}
	}
	for _, p := range executables {
		if strings.HasPrefix(strings.ToLower(filepath.Base(p)), tool) {
			return p, nil
		}
	}
	if len(executables) == 1 {
		return executables[0], nil
	}
	return "", fmt.Errorf("no executable named %s in %s (found %d candidates)", tool, root, len(executables))
}

// copyBinary replaces dst with the contents of src and marks it executable.
func copyBinary(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := atomic.WriteFile(dst, in); err != nil {
		return err
	}
	return os.Chmod(dst, 0755)
}
