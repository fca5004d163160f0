// Package archive bundles local files into a single tar archive compressed
// with xz, lzip or zstd. It never fetches or resolves anything. No forge
// command calls it.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// Format identifies one of the three supported bundle codecs.
type Format string

const (
	FormatTarXZ  Format = "tar.xz"
	FormatTarLZ  Format = "tar.lz"
	FormatTarZst Format = "tar.zst"
)

// DetectFormat infers a Format from an output filename's suffix, accepting
// both the long (".tar.xz") and the short (".txz") suffix of each codec.
func DetectFormat(filename string) (Format, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXZ, nil
	case strings.HasSuffix(lower, ".tar.lz"), strings.HasSuffix(lower, ".tlz"):
		return FormatTarLZ, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst, nil
	default:
		return "", fmt.Errorf("unrecognized archive suffix: %s", filename)
	}
}

// Entry is one file to place in the archive, named relative to the
// archive root.
type Entry struct {
	// ArchivePath is the entry's path inside the archive (forward slashes).
	ArchivePath string
	// SourcePath is its location on disk.
	SourcePath string
}

// Create bundles entries into a single archive at outputPath using format.
func Create(format Format, outputPath string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("creating archive output directory: %w", err)
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	compressed, closeCompressed, err := wrapCompressor(format, out)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(compressed)
	for _, e := range entries {
		if err := addEntry(tw, e); err != nil {
			tw.Close()
			closeCompressed()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		closeCompressed()
		return fmt.Errorf("finalizing tar stream: %w", err)
	}
	return closeCompressed()
}

func wrapCompressor(format Format, w io.Writer) (io.Writer, func() error, error) {
	switch format {
	case FormatTarXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("creating xz writer: %w", err)
		}
		return xw, func() error { return xw.Close() }, nil
	case FormatTarLZ:
		lw, err := lzip.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("creating lzip writer: %w", err)
		}
		return lw, func() error { return lw.Close() }, nil
	case FormatTarZst:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		return zw, func() error { return zw.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

func addEntry(tw *tar.Writer, e Entry) error {
	info, err := os.Stat(e.SourcePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.SourcePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("archiving directories directly is not supported: %s", e.SourcePath)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("building tar header for %s: %w", e.SourcePath, err)
	}
	header.Name = filepath.ToSlash(e.ArchivePath)

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", e.ArchivePath, err)
	}

	f, err := os.Open(e.SourcePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", e.SourcePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("writing %s into archive: %w", e.ArchivePath, err)
	}
	return nil
}

// ListEntry describes one file found while listing an archive's contents,
// without extracting it.
type ListEntry struct {
	Path       string
	Size       int64
	Executable bool
}

// List reads an archive's tar headers without extracting any file data.
func List(format Format, archivePath string) ([]ListEntry, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case FormatTarXZ:
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		r = xr
	case FormatTarLZ:
		lr, err := lzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating lzip reader: %w", err)
		}
		r = lr
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}

	tr := tar.NewReader(r)
	var entries []ListEntry
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		entries = append(entries, ListEntry{
			Path:       strings.TrimPrefix(header.Name, "./"),
			Size:       header.Size,
			Executable: header.Mode&0100 != 0,
		})
	}
	return entries, nil
}
