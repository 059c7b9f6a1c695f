package backup

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Archive writes a zstd-compressed tar of srcDir to w. Entry names are
// relative to srcDir. Symlinks are stored as links; other non-regular
// files are skipped. Returns the number of entries written.
func Archive(srcDir string, w io.Writer) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	entries := 0
	walkErr := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			// Sockets, FIFOs etc. from a live gateway are not worth backing up.
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		entries++

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return nil
	})
	if walkErr != nil {
		tw.Close()
		zw.Close()
		return entries, fmt.Errorf("walk %s: %w", srcDir, walkErr)
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return entries, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return entries, fmt.Errorf("close zstd: %w", err)
	}
	return entries, nil
}

// Extract unpacks a zstd-compressed tar produced by Archive into destDir,
// overwriting existing entries. Entries resolving outside destDir are
// rejected. Returns the number of entries written.
func Extract(r io.Reader, destDir string) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	root := filepath.Clean(destDir)
	tr := tar.NewReader(zr)
	entries := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("read tar: %w", err)
		}

		target := filepath.Join(root, filepath.FromSlash(hdr.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return entries, fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()); err != nil {
				return entries, err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return entries, err
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return entries, err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return entries, fmt.Errorf("restore symlink %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return entries, err
			}
			f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return entries, err
			}
			_, err = io.Copy(f, tr)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return entries, fmt.Errorf("restore %s: %w", hdr.Name, err)
			}
		default:
			continue
		}
		entries++
	}
}

// ArchiveToFile archives srcDir into a temp file and returns its path.
// The caller removes the file when done.
func ArchiveToFile(srcDir string) (string, int, error) {
	tmp, err := os.CreateTemp("", "moltproxy-backup-*.tar.zst")
	if err != nil {
		return "", 0, fmt.Errorf("create temp archive: %w", err)
	}

	entries, err := Archive(srcDir, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	return tmp.Name(), entries, nil
}
