package server

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/swordd/depositd/checks"
	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// aggregateArchives extracts every archive of the deposit into a fresh
// workspace and re-packs the union into one zip. The workspace is recorded
// for the janitor, which removes it after the ingester had time to pull the
// payload.
func (s *RESTServer) aggregateArchives(d *deposit.Deposit, archives []deposit.Request) (string, *sword.Error) {
	workspace := filepath.Join(s.ExtractionDir, uuid.NewV4().String())
	srcdir := filepath.Join(workspace, "src")
	if err := os.MkdirAll(srcdir, 0755); err != nil {
		return "", dberror(err)
	}
	for _, req := range archives {
		if err := s.extractStored(req, srcdir); err != nil {
			os.RemoveAll(workspace)
			log.Println("aggregating deposit", d.ID, ":", err)
			return "", sword.BadRequest(fmt.Sprintf("cannot extract archive %s", req.ArchiveName))
		}
	}
	zippath := filepath.Join(workspace, fmt.Sprintf("deposit-%d.zip", d.ID))
	if err := buildZip(srcdir, zippath); err != nil {
		os.RemoveAll(workspace)
		return "", dberror(err)
	}
	if err := s.DB.AddTemporaryArchive(workspace, time.Now().UTC()); err != nil {
		os.RemoveAll(workspace)
		return "", dberror(err)
	}
	return zippath, nil
}

// extractStored copies one stored payload to scratch and unpacks it into
// dest. Only the formats the readability check accepts appear here.
func (s *RESTServer) extractStored(req deposit.Request, dest string) error {
	f, err := s.payloadTempFile(req)
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	switch ext := checks.ArchiveExtension(req.ArchiveName); ext {
	case ".zip":
		return extractZip(f, req.ArchiveSize, dest)
	case ".tar":
		return extractTar(f, dest)
	case ".tar.gz", ".tgz", ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		return extractTar(gz, dest)
	case ".tar.bz2", ".bz2":
		return extractTar(bzip2.NewReader(f), dest)
	default:
		return fmt.Errorf("cannot extract a %s archive", ext)
	}
}

func extractZip(f *os.File, size int64, dest string) error {
	zr, err := zip.NewReader(f, size)
	if err != nil {
		return err
	}
	for _, zf := range zr.File {
		target, err := securePath(dest, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

// securePath joins name under dest and refuses names escaping it.
func securePath(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return target, nil
}

func writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	return err
}

// buildZip packs the contents of srcdir into a zip at zippath. Entry names
// are relative to srcdir.
func buildZip(srcdir, zippath string) error {
	out, err := os.Create(zippath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	err = filepath.Walk(srcdir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcdir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		f.Close()
		return err
	})
	if err != nil {
		zw.Close()
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
