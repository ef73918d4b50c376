package checks

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTempFile saves content to a temp file and returns the open file and
// its size. The caller removes it.
func writeTempFile(t *testing.T, content []byte) (*os.File, int64) {
	f, err := ioutil.TempFile("", "archive-test-")
	require.NoError(t, err)
	t.Cleanup(func() {
		f.Close()
		os.Remove(f.Name())
	})
	_, err = f.Write(content)
	require.NoError(t, err)
	return f, int64(len(content))
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	var buf []byte
	tmp, err := ioutil.TempFile("", "zip-")
	require.NoError(t, err)
	defer os.Remove(tmp.Name())
	zw := zip.NewWriter(tmp)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		w.Write([]byte(content))
	}
	require.NoError(t, zw.Close())
	tmp.Close()
	buf, err = ioutil.ReadFile(tmp.Name())
	require.NoError(t, err)
	return buf
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	tmp, err := ioutil.TempFile("", "targz-")
	require.NoError(t, err)
	defer os.Remove(tmp.Name())
	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}))
		tw.Write([]byte(content))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	tmp.Close()
	buf, err := ioutil.ReadFile(tmp.Name())
	require.NoError(t, err)
	return buf
}

func TestArchiveExtension(t *testing.T) {
	assert.Equal(t, ".zip", ArchiveExtension("payload.zip"))
	assert.Equal(t, ".tar.gz", ArchiveExtension("payload.tar.gz"))
	assert.Equal(t, ".tgz", ArchiveExtension("payload.tgz"))
	assert.Equal(t, ".7z", ArchiveExtension("payload.7z"))
	assert.Equal(t, "", ArchiveExtension("README.md"))
}

func TestArchiveAcceptsZip(t *testing.T) {
	f, size := writeTempFile(t, zipBytes(t, map[string]string{
		"src/main.go": "package main",
		"README":      "hello",
	}))
	assert.Nil(t, Archive("payload.zip", f, size))
}

func TestArchiveAcceptsTarGz(t *testing.T) {
	f, size := writeTempFile(t, tarGzBytes(t, map[string]string{
		"src/main.go": "package main",
		"README":      "hello",
	}))
	assert.Nil(t, Archive("payload.tar.gz", f, size))
}

func TestArchiveRejectsUnknownExtension(t *testing.T) {
	f, size := writeTempFile(t, []byte("whatever"))
	entry := Archive("payload.rar", f, size)
	require.NotNil(t, entry)
	assert.Equal(t, "Unsupported archive type", entry.Summary)
}

func TestArchiveRejectsUnreadable(t *testing.T) {
	f, size := writeTempFile(t, []byte("this is not a zip file at all"))
	entry := Archive("payload.zip", f, size)
	require.NotNil(t, entry)
	assert.Equal(t, "Unreadable archive", entry.Summary)
}

func TestArchiveRejectsNestedArchive(t *testing.T) {
	f, size := writeTempFile(t, zipBytes(t, map[string]string{
		"inner.tar.gz": "pretend compressed bytes",
	}))
	entry := Archive("outer.zip", f, size)
	require.NotNil(t, entry)
	assert.Contains(t, entry.Fields, "outer.zip")
}

func TestArchiveAllowsSingleRegularFile(t *testing.T) {
	f, size := writeTempFile(t, zipBytes(t, map[string]string{
		"main.go": "package main",
	}))
	assert.Nil(t, Archive("payload.zip", f, size))
}

func TestArchiveRejectsUndecompressableFormats(t *testing.T) {
	// .xz is recognized by extension but cannot be opened here
	f, size := writeTempFile(t, []byte("\xfd7zXZ\x00fake"))
	entry := Archive("payload.tar.xz", f, size)
	require.NotNil(t, entry)
	assert.Equal(t, "Unreadable archive", entry.Summary)
}
