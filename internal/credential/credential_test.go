package credential

import (
	"crypto/md5"
	"fmt"
	"testing"
)

func TestDigestDeterministic(t *testing.T) {
	d1 := Digest("admin", "admin123")
	d2 := Digest("admin", "admin123")
	if d1 != d2 {
		t.Errorf("Digest is not deterministic: %q != %q", d1, d2)
	}

	if d3 := Digest("admin", "admin124"); d3 == d1 {
		t.Error("Digest should differ for different passwords")
	}
}

func TestDigestFormat(t *testing.T) {
	want := fmt.Sprintf("%x", md5.Sum([]byte("manage_!manage")))
	if got := Digest("manage", "!manage"); got != want {
		t.Errorf("Digest = %q, want %q", got, want)
	}
}

func TestDigestWithSHA256(t *testing.T) {
	md := DigestWith(MD5, "admin", "admin123")
	sha := DigestWith(SHA256, "admin", "admin123")

	if len(md) != 32 {
		t.Errorf("md5 digest length = %d, want 32", len(md))
	}
	if len(sha) != 64 {
		t.Errorf("sha256 digest length = %d, want 64", len(sha))
	}
	if md != Digest("admin", "admin123") {
		t.Error("DigestWith(MD5) should match Digest")
	}
}

func TestSeparatorMatters(t *testing.T) {
	if Digest("admin", "pw") == Digest("adminpw", "") {
		t.Error("separator should distinguish username from password")
	}
}

func TestCredentialsDigest(t *testing.T) {
	c := Credentials{Username: "admin", Password: "admin123"}
	if c.Digest(MD5) != Digest("admin", "admin123") {
		t.Error("Credentials.Digest should match Digest")
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", MD5, false},
		{"md5", MD5, false},
		{"SHA256", SHA256, false},
		{"sha1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAlgorithm(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
