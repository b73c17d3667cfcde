package storage

import (
	"context"
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://archive/reddit/Conspiracy_comments.zst", "archive", "reddit/Conspiracy_comments.zst", true},
		{"s3://archive/", "", "", false},
		{"s3://archive", "", "", false},
		{"data/raw/Conspiracy_comments.zst", "", "", false},
	}

	for _, tt := range tests {
		bucket, key, ok := ParseURI(tt.uri)
		if ok != tt.ok || bucket != tt.bucket || key != tt.key {
			t.Fatalf("ParseURI(%q) = %q, %q, %v", tt.uri, bucket, key, ok)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"raw_kg_data.json":                "application/json",
		"triples.jsonl":                   "application/x-ndjson",
		"knowledge_graph_small_edges.csv": "text/csv",
		"README":                          "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestUploadRejectsInvalidPrefix(t *testing.T) {
	if _, err := Upload(context.Background(), nil, "exports/graph", nil); err == nil {
		t.Fatal("expected error for non-s3 prefix")
	}
	if _, err := Upload(context.Background(), nil, "s3:///graph", nil); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
