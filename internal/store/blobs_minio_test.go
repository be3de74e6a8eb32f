package store

import (
	"context"
	"testing"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantEndpoint string
		wantSecure   bool
		wantErr      bool
	}{
		{"minio:9000", "minio:9000", false, false},
		{"  minio:9000 ", "minio:9000", false, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://s3.example.com", "s3.example.com", true, false},
		{"http://minio:9000/", "minio:9000", false, false},
		{"http://minio:9000/bucket", "", false, true},
		{"http://", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		ep, secure, err := normaliseEndpoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("expected error for input %q", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.in, err)
		}
		if ep != tt.wantEndpoint || secure != tt.wantSecure {
			t.Fatalf("normaliseEndpoint(%q) = (%q,%v), want (%q,%v)", tt.in, ep, secure, tt.wantEndpoint, tt.wantSecure)
		}
	}
}

func TestNewMinioBlobs_Incomplete(t *testing.T) {
	_, err := NewMinioBlobs(context.Background(), MinioConfig{Endpoint: "minio:9000", Bucket: "drop"})
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestMinioBlobs_LocateAndNameGuard(t *testing.T) {
	b := &MinioBlobs{bucket: "drop"}
	if got := b.Locate("abc_x.txt"); got != "s3://drop/abc_x.txt" {
		t.Fatalf("Locate = %q", got)
	}
	if _, err := b.Stat(context.Background(), "../etc/passwd"); err != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}
