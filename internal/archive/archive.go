// Package archive opens downloaded zip files and extracts their members.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

var (
	// ErrFormat marks content that cannot be read as an archive.
	ErrFormat = errors.New("archive format error")

	// ErrUnsafePath is wrapped in ErrFormat for members that would be
	// written outside the extraction directory.
	ErrUnsafePath = errors.New("member path escapes destination")
)

// Archive is an opened archive.
type Archive interface {
	// Names lists every member, directories included, in archive order.
	Names() []string
	// ExtractAll writes every member below dir.
	ExtractAll(fsys afero.Fs, dir string) error
	Close() error
}

// Opener opens a file as an Archive. Errors that mean "not an archive"
// wrap ErrFormat; anything else is an I/O failure.
type Opener interface {
	Open(fsys afero.Fs, path string) (Archive, error)
}

// Zip opens zip archives.
type Zip struct{}

var _ Opener = Zip{}

// Open reads path into memory and parses it as a zip. The returned Archive
// does not hold the file open, so path may be removed before extraction.
func (Zip) Open(fsys afero.Fs, path string) (Archive, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFormat, filepath.Base(path), err)
	}
	return &zipArchive{reader: zr}, nil
}

type zipArchive struct {
	reader *zip.Reader
}

func (a *zipArchive) Names() []string {
	names := make([]string, 0, len(a.reader.File))
	for _, f := range a.reader.File {
		names = append(names, f.Name)
	}
	return names
}

// ExtractAll checks every member path before writing anything, so an
// unsafe archive leaves dir untouched.
func (a *zipArchive) ExtractAll(fsys afero.Fs, dir string) error {
	targets := make([]string, len(a.reader.File))
	for i, f := range a.reader.File {
		target, err := memberPath(dir, f.Name)
		if err != nil {
			return err
		}
		targets[i] = target
	}

	for i, f := range a.reader.File {
		if err := extractMember(fsys, f, targets[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *zipArchive) Close() error {
	return nil
}

func memberPath(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %w: %q", ErrFormat, ErrUnsafePath, name)
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %w: %q", ErrFormat, ErrUnsafePath, name)
	}
	return target, nil
}

func extractMember(fsys afero.Fs, f *zip.File, target string) error {
	if f.FileInfo().IsDir() {
		if err := fsys.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", target, err)
		}
		return nil
	}
	if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open member %s: %w", ErrFormat, f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := fsys.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		fsys.Remove(target)
		// Checksum and decompression failures come from the archive, not the disk.
		if errors.Is(copyErr, zip.ErrChecksum) || errors.Is(copyErr, zip.ErrFormat) {
			return fmt.Errorf("%w: extract %s: %w", ErrFormat, f.Name, copyErr)
		}
		return fmt.Errorf("extract %s: %w", f.Name, copyErr)
	}
	if closeErr != nil {
		fsys.Remove(target)
		return fmt.Errorf("close %s: %w", target, closeErr)
	}
	return nil
}
