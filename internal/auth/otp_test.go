package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		c := NewCode()
		if len(c) < 20 {
			t.Fatalf("NewCode() = %q, too short", c)
		}
		if seen[c] {
			t.Fatalf("NewCode() repeated %q", c)
		}
		seen[c] = true
	}
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	h := NewCodeHasherForTest()

	hash, err := h.Hash("ABCDEF")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("Hash() = %q, want bcrypt $2a$ prefix", hash)
	}
}

func TestHash_RejectsLongCode(t *testing.T) {
	h := NewCodeHasherForTest()
	if _, err := h.Hash(strings.Repeat("x", 73)); err == nil {
		t.Error("Hash() accepted a 73-byte code")
	}
}

func TestVerify(t *testing.T) {
	h := NewCodeHasherForTest()
	code := NewCode()

	hash, err := h.Hash(code)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if err := h.Verify(hash, code); err != nil {
		t.Errorf("Verify(correct) error = %v", err)
	}
	if err := h.Verify(hash, "wrong"); !errors.Is(err, ErrCodeMismatch) {
		t.Errorf("Verify(wrong) error = %v, want ErrCodeMismatch", err)
	}
	if err := h.Verify("garbage", code); err == nil || errors.Is(err, ErrCodeMismatch) {
		t.Errorf("Verify(garbage hash) error = %v, want a non-mismatch error", err)
	}
}
