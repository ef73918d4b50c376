package store

import (
	"io"
	"io/ioutil"
	"os"
	"sort"
	"testing"
)

// exercise a store through its full lifecycle: create, reopen, list, delete.
func runStoreTests(t *testing.T, s Store) {
	// create and read back
	w, err := s.Create("dr000001")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("zip bytes"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, size, err := s.Open("dr000001")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := ioutil.ReadAll(r)
	r.Close()
	if string(body) != "zip bytes" {
		t.Errorf("received %#v, expected %#v", string(body), "zip bytes")
	}
	if size != int64(len("zip bytes")) {
		t.Errorf("size %d, expected %d", size, len("zip bytes"))
	}

	// duplicate keys are refused
	_, err = s.Create("dr000001")
	if err != ErrKeyExists {
		t.Errorf("duplicate create: received %v, expected %v", err, ErrKeyExists)
	}

	// list with prefix
	w, err = s.Create("dr000002")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "more")
	w.Close()
	keys, err := s.ListPrefix("dr")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "dr000001" || keys[1] != "dr000002" {
		t.Errorf("ListPrefix received %v", keys)
	}

	// delete is idempotent
	if err := s.Delete("dr000001"); err != nil {
		t.Error(err)
	}
	if err := s.Delete("dr000001"); err != nil {
		t.Error("second delete:", err)
	}
	if _, _, err := s.Open("dr000001"); err == nil {
		t.Error("opened a deleted key")
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemory())
}

func TestFileSystemStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "store-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	runStoreTests(t, NewFileSystem(dir))
}

func TestPrefixStore(t *testing.T) {
	base := NewMemory()
	runStoreTests(t, NewWithPrefix(base, "ag-"))
	// the wrapped keys carry the prefix in the base store
	keys, _ := base.ListPrefix("ag-")
	if len(keys) == 0 {
		t.Error("no prefixed keys in base store")
	}
}

func TestFileSystemBadKeys(t *testing.T) {
	dir, err := ioutil.TempDir("", "store-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	s := NewFileSystem(dir)
	for _, key := range []string{"", "a/b", "with space", "ctrl\x01char"} {
		if _, err := s.Create(key); err != ErrKeyInvalid {
			t.Errorf("key %#v: received %v, expected %v", key, err, ErrKeyInvalid)
		}
	}
}
