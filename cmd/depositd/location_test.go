package main

import (
	"testing"

	"github.com/swordd/depositd/store"
)

func TestSplitBucketPrefix(t *testing.T) {
	var table = []struct {
		location string
		addition string
		bucket   string
		prefix   string
	}{
		{"", "", "", ""},
		{"", "deposits", "", ""},
		{"bucket", "", "bucket", ""},
		{"/bucket", "", "bucket", ""},
		{"bucket/and/a/prefix", "", "bucket", "and/a/prefix/"},
		{"bucket/and/a/prefix/", "", "bucket", "and/a/prefix/"},
		{"bucket", "deposits", "bucket", "deposits/"},
		{"bucket/prefix", "deposits", "bucket", "prefix/deposits/"},
	}

	for _, row := range table {
		bucket, prefix := splitBucketPrefix(row.location, row.addition)
		if bucket != row.bucket || prefix != row.prefix {
			t.Errorf("splitBucketPrefix(%q, %q) = (%q, %q), expected (%q, %q)",
				row.location, row.addition, bucket, prefix, row.bucket, row.prefix)
		}
	}
}

const (
	typeMemory = iota
	typeFile
	typeS3
	typeNil
)

func TestParseLocation(t *testing.T) {
	var table = []struct {
		location string
		addition string
		kind     int
		bucket   string // only for S3
		prefix   string // only for S3
	}{
		{"", "", typeMemory, "", ""},
		{"relative/path", "deposits", typeFile, "", ""},
		{"/absolute/path", "deposits", typeFile, "", ""},
		{"file:///tmp/deposit-store", "deposits", typeFile, "", ""},
		{"s3://localhost:9000/bucketname", "deposits", typeS3, "bucketname", "deposits/"},
		{"s3:/bucketname/prefix", "deposits", typeS3, "bucketname", "prefix/deposits/"},
		{"s3://localhost:9000/", "deposits", typeNil, "", ""},
	}

	for _, row := range table {
		result := parselocation(row.location, row.addition)
		switch s := result.(type) {
		case *store.Memory:
			if row.kind != typeMemory {
				t.Errorf("parselocation(%q) returned a memory store", row.location)
			}
		case *store.FileSystem:
			if row.kind != typeFile {
				t.Errorf("parselocation(%q) returned a filesystem store", row.location)
			}
		case *store.S3:
			if row.kind != typeS3 {
				t.Errorf("parselocation(%q) returned an S3 store", row.location)
			}
			if s.Bucket != row.bucket || s.Prefix != row.prefix {
				t.Errorf("parselocation(%q) = (%q, %q), expected (%q, %q)",
					row.location, s.Bucket, s.Prefix, row.bucket, row.prefix)
			}
		case nil:
			if row.kind != typeNil {
				t.Errorf("parselocation(%q) returned nil", row.location)
			}
		default:
			t.Errorf("parselocation(%q) returned unexpected type %T", row.location, result)
		}
	}
}
