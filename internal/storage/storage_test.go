package storage

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"cvlm/internal/ports"
)

func TestIsMissingObject(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", fmt.Errorf("get object %q: %w", "k", ports.ErrObjectNotFound), true},
		{"minio code", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"wrapped", fmt.Errorf("stat: %w", minio.ErrorResponse{Code: "NotFound"}), true},
		{"bare 404", minio.ErrorResponse{StatusCode: http.StatusNotFound}, true},
		{"string fallback", errors.New("The specified key does not exist."), true},
		{"missing bucket", minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, false},
		{"other", minio.ErrorResponse{Code: "AccessDenied", Message: "denied"}, false},
		{"unrelated not found text", errors.New("dial tcp: lookup minio: host not found"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isMissingObject(tc.err); got != tc.want {
				t.Fatalf("isMissingObject(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsMissingBucket(t *testing.T) {
	if !isMissingBucket(fmt.Errorf("check: %w", minio.ErrorResponse{Code: "NoSuchBucket"})) {
		t.Fatalf("expected NoSuchBucket to be detected")
	}
	if isMissingBucket(minio.ErrorResponse{Code: "NoSuchKey", Message: "key"}) {
		t.Fatalf("NoSuchKey should not be reported as a missing bucket")
	}
}

func TestParseBucketLookup(t *testing.T) {
	for _, raw := range []string{"", "auto", "DNS", " path "} {
		if _, err := parseBucketLookup(raw); err != nil {
			t.Fatalf("parseBucketLookup(%q) error = %v", raw, err)
		}
	}
	if _, err := parseBucketLookup("virtual"); err == nil {
		t.Fatalf("expected error for unknown lookup")
	}
}

func TestContentDisposition(t *testing.T) {
	if got := ContentDisposition("Acme_Dev.pdf"); got != "attachment; filename=Acme_Dev.pdf" {
		t.Fatalf("unexpected header %q", got)
	}
	got := ContentDisposition("Société_Générale.pdf")
	if !strings.HasPrefix(got, "attachment; filename*=utf-8''") {
		t.Fatalf("non-ascii names should use RFC 2231 encoding, got %q", got)
	}
}
