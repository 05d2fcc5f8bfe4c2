package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundtrip(t *testing.T) {
	plaintext := []byte("bearer-token-value")

	sealed, err := SealAESGCM(testKeyHex, plaintext)
	if err != nil {
		t.Fatalf("SealAESGCM: %v", err)
	}
	if sealed == string(plaintext) {
		t.Fatal("sealed value equals plaintext")
	}

	opened, err := OpenAESGCM(testKeyHex, sealed)
	if err != nil {
		t.Fatalf("OpenAESGCM: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("roundtrip mismatch: got %q", opened)
	}
}

func TestSealProducesUniqueNonces(t *testing.T) {
	a, err := SealAESGCM(testKeyHex, []byte("same input"))
	if err != nil {
		t.Fatalf("SealAESGCM: %v", err)
	}
	b, err := SealAESGCM(testKeyHex, []byte("same input"))
	if err != nil {
		t.Fatalf("SealAESGCM: %v", err)
	}
	if a == b {
		t.Fatal("two seals of the same plaintext produced identical output")
	}
}

func TestSealRejectsWrongKeySize(t *testing.T) {
	if _, err := SealAESGCM("deadbeef", []byte("x")); !errors.Is(err, ErrInvalidAESKeySize) {
		t.Fatalf("error = %v, want ErrInvalidAESKeySize", err)
	}
}

func TestSealRejectsNonHexKey(t *testing.T) {
	if _, err := SealAESGCM(strings.Repeat("zz", 32), []byte("x")); err == nil {
		t.Fatal("non-hex key accepted")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	otherKey := strings.Repeat("ff", 32)
	sealed, err := SealAESGCM(testKeyHex, []byte("secret"))
	if err != nil {
		t.Fatalf("SealAESGCM: %v", err)
	}
	if _, err := OpenAESGCM(otherKey, sealed); !errors.Is(err, ErrCredentialOpenFailed) {
		t.Fatalf("error = %v, want ErrCredentialOpenFailed", err)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	sealed, err := SealAESGCM(testKeyHex, []byte("secret"))
	if err != nil {
		t.Fatalf("SealAESGCM: %v", err)
	}
	raw, _ := base64.URLEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.URLEncoding.EncodeToString(raw)

	if _, err := OpenAESGCM(testKeyHex, tampered); !errors.Is(err, ErrCredentialOpenFailed) {
		t.Fatalf("error = %v, want ErrCredentialOpenFailed", err)
	}
}

func TestOpenRejectsBadBase64(t *testing.T) {
	if _, err := OpenAESGCM(testKeyHex, "not/base64!!"); !errors.Is(err, ErrInvalidSealedFormat) {
		t.Fatalf("error = %v, want ErrInvalidSealedFormat", err)
	}
}

func TestOpenRejectsTruncatedValue(t *testing.T) {
	short := base64.URLEncoding.EncodeToString([]byte("short"))
	if _, err := OpenAESGCM(testKeyHex, short); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("error = %v, want ErrCiphertextTooShort", err)
	}
}
