package checks

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/swordd/depositd/deposit"
)

// extensions recognized as archives. Order matters: the double extensions
// must come before their suffixes.
var archiveExtensions = []string{
	".tar.gz", ".tar.bz2", ".tar.xz", ".tar.Z",
	".zip", ".tar", ".tgz", ".gz", ".xz", ".bz2", ".Z", ".7z",
}

// ArchiveExtension returns the archive extension of name, or "" when the
// name does not look like an archive.
func ArchiveExtension(name string) string {
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(name, ext) {
			return ext
		}
	}
	return ""
}

// Archive validates one stored archive payload, available as the local file
// f of the given size. It returns nil when the archive is acceptable, or a
// detail entry describing the problem.
//
// An archive is rejected when its extension is unknown, when it cannot be
// read as a zip or tar, or when it contains exactly one entry that is
// itself an archive.
func Archive(name string, f *os.File, size int64) *deposit.DetailEntry {
	ext := ArchiveExtension(name)
	if ext == "" {
		return &deposit.DetailEntry{
			Summary: "Unsupported archive type",
			Fields:  []string{name},
		}
	}
	entries, err := listEntries(ext, f, size)
	if err != nil {
		return &deposit.DetailEntry{
			Summary: "Unreadable archive",
			Fields:  []string{name},
		}
	}
	if len(entries) == 1 && ArchiveExtension(path.Base(entries[0])) != "" {
		return &deposit.DetailEntry{
			Summary: "Archive contains a single file which is itself an archive",
			Fields:  []string{name, entries[0]},
		}
	}
	return nil
}

// listEntries opens the archive and returns its top level entry names.
// Zip and tar (plain, gzip, bzip2) are supported; other recognized
// extensions cannot be decompressed here and are reported unreadable.
func listEntries(ext string, f *os.File, size int64) ([]string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch ext {
	case ".zip":
		zr, err := zip.NewReader(f, size)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, zf := range zr.File {
			names = append(names, zf.Name)
		}
		return names, nil
	case ".tar":
		return listTar(f)
	case ".tar.gz", ".tgz", ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return listTar(gz)
	case ".tar.bz2", ".bz2":
		return listTar(bzip2.NewReader(f))
	}
	return nil, errUnsupportedCompression
}

// recognized by extension, but the Go standard library has no decompressor
// for it. The readability check rejects these.
var errUnsupportedCompression = errors.New("no decompressor for this format")

func listTar(r io.Reader) ([]string, error) {
	tr := tar.NewReader(r)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
	}
	return names, nil
}
