package util

import (
	"bytes"
	"crypto/md5"
	"io"
	"testing"
)

func TestHashWriter(t *testing.T) {
	var table = []string{
		"",
		"hello world",
		"a longer string to push through the writer, more than one word",
	}
	for _, text := range table {
		var out bytes.Buffer
		hw := NewHashWriter(&out)
		io.Copy(hw, bytes.NewReader([]byte(text)))
		if out.String() != text {
			t.Errorf("wrote %#v, received %#v", text, out.String())
		}
		if hw.Size() != int64(len(text)) {
			t.Errorf("size %d, expected %d", hw.Size(), len(text))
		}
		goal := md5.Sum([]byte(text))
		if _, ok := hw.CheckMD5(goal[:]); !ok {
			t.Errorf("MD5 mismatch for %#v", text)
		}
		if _, ok := hw.CheckMD5([]byte("not a hash")); ok {
			t.Errorf("bogus MD5 accepted for %#v", text)
		}
		// empty goal always matches
		if _, ok := hw.CheckSHA256(nil); !ok {
			t.Errorf("empty SHA256 goal rejected for %#v", text)
		}
	}
}

func TestMD5Writer(t *testing.T) {
	var out bytes.Buffer
	hw := NewMD5Writer(&out)
	hw.Write([]byte("abc"))
	hw.Write([]byte("def"))
	goal := md5.Sum([]byte("abcdef"))
	if _, ok := hw.CheckMD5(goal[:]); !ok {
		t.Error("MD5 mismatch across multiple writes")
	}
	if hw.Size() != 6 {
		t.Errorf("size %d, expected 6", hw.Size())
	}
}
