package dkim

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleSignature = "v=1; a=rsa-sha256; c=relaxed/relaxed; d=example.com;\r\n" +
	"\ts=selector1; t=1719446400;\r\n" +
	"\tbh=47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=;\r\n" +
	"\th=from:to:subject:date;\r\n" +
	"\tb=dGhpcyBpcyBub3QgYSByZWFsIHNpZ25hdHVyZSBidXQgaXQgaXMgbG9uZyBlbm91Z2ggdG8gdHJ1bmNhdGU="

func TestParseTagValue(t *testing.T) {
	t.Parallel()

	tags := ParseTagValue(sampleSignature)
	want := map[string]string{
		"v":  "1",
		"a":  "rsa-sha256",
		"c":  "relaxed/relaxed",
		"d":  "example.com",
		"s":  "selector1",
		"t":  "1719446400",
		"bh": "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=",
		"h":  "from:to:subject:date",
		"b":  "dGhpcyBpcyBub3QgYSByZWFsIHNpZ25hdHVyZSBidXQgaXQgaXMgbG9uZyBlbm91Z2ggdG8gdHJ1bmNhdGU=",
	}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestParseTagValueMalformed(t *testing.T) {
	t.Parallel()

	tags := ParseTagValue("d=example.com; nonsense; ; =value; s=sel")
	want := map[string]string{
		"d": "example.com",
		"s": "sel",
	}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestVerifySuccess(t *testing.T) {
	t.Parallel()

	v := NewVerifier(func([]byte) (bool, error) { return true, nil })
	verdict := v.Verify([]byte("raw"), sampleSignature)

	if !verdict.Verified {
		t.Fatal("expected verified verdict")
	}
	if verdict.Domain != "example.com" || verdict.Selector != "selector1" || verdict.Algorithm != "rsa-sha256" {
		t.Errorf("signature metadata not extracted: %+v", verdict)
	}
	if len(verdict.Signature) != 53 { // 50 chars plus ellipsis
		t.Errorf("signature not truncated: %q", verdict.Signature)
	}
}

func TestVerifyFailureAndError(t *testing.T) {
	t.Parallel()

	v := NewVerifier(func([]byte) (bool, error) { return false, nil })
	if verdict := v.Verify([]byte("raw"), sampleSignature); verdict.Verified {
		t.Error("failed check reported as verified")
	}

	v = NewVerifier(func([]byte) (bool, error) { return false, errors.New("boom") })
	verdict := v.Verify([]byte("raw"), sampleSignature)
	if verdict.Verified {
		t.Error("errored check reported as verified")
	}
	if verdict.Message != "dkim verification error: boom" {
		t.Errorf("unexpected message: %q", verdict.Message)
	}
}

func TestVerifyNoSignature(t *testing.T) {
	t.Parallel()

	called := false
	v := NewVerifier(func([]byte) (bool, error) { called = true; return true, nil })
	verdict := v.Verify([]byte("raw"), "")

	if verdict.Verified || called {
		t.Error("missing signature must not reach the crypto check")
	}
}

func TestVerifyNilFunc(t *testing.T) {
	t.Parallel()

	verdict := NewVerifier(nil).Verify([]byte("raw"), sampleSignature)
	if verdict.Verified {
		t.Error("nil verifier must not claim verification")
	}
	if verdict.Domain != "example.com" {
		t.Errorf("metadata missing from skipped verdict: %+v", verdict)
	}
}
