package objectstore

import "testing"

func TestParseBucketURL(t *testing.T) {
	tests := []struct {
		raw        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{"s3://my-bucket", "my-bucket", "", false},
		{"s3://my-bucket/sdks", "my-bucket", "sdks", false},
		{"s3://my-bucket/sdks/", "my-bucket", "sdks", false},
		{"https://my-bucket", "", "", true},
	}
	for _, tt := range tests {
		bucket, prefix, err := parseBucketURL(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseBucketURL(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseBucketURL(%q): %v", tt.raw, err)
		}
		if bucket != tt.wantBucket || prefix != tt.wantPrefix {
			t.Errorf("parseBucketURL(%q) = (%q,%q), want (%q,%q)", tt.raw, bucket, prefix, tt.wantBucket, tt.wantPrefix)
		}
	}
}
