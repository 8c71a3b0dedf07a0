package token

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "test-secret-key"

// corruptSignature flips the last character of the token's signature.
func corruptSignature(tok string) string {
	last := tok[len(tok)-1]
	c := byte('A')
	if last == 'A' {
		c = 'B'
	}
	return tok[:len(tok)-1] + string(c)
}

func TestMintAndVerify(t *testing.T) {
	signer := NewSigner(testSecret, time.Hour)

	tok, err := signer.Mint(42)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	userID, err := signer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != 42 {
		t.Errorf("Verify() userID = %d, want 42", userID)
	}
}

func TestVerify_Expired(t *testing.T) {
	signer := NewSigner(testSecret, -time.Minute)

	tok, err := signer.Mint(42)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = signer.Verify(tok)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("Verify() error = %v, want ErrExpired", err)
	}
}

func TestVerify_CorruptedSignature(t *testing.T) {
	signer := NewSigner(testSecret, time.Hour)

	tok, err := signer.Mint(42)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = signer.Verify(corruptSignature(tok))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Verify() error = %v, want ErrInvalid", err)
	}
}

// A corrupted signature must win over expiry: the credential is
// untrustworthy, not merely stale.
func TestVerify_ExpiredAndCorrupted(t *testing.T) {
	signer := NewSigner(testSecret, -time.Minute)

	tok, err := signer.Mint(42)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = signer.Verify(corruptSignature(tok))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Verify() error = %v, want ErrInvalid", err)
	}
	if errors.Is(err, ErrExpired) {
		t.Errorf("Verify() classified a corrupted token as expired")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewSigner("other-secret", time.Hour).Mint(42)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = NewSigner(testSecret, time.Hour).Verify(tok)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Verify() error = %v, want ErrInvalid", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	signer := NewSigner(testSecret, time.Hour)

	for _, tok := range []string{"", "garbage", "a.b.c", "a.b"} {
		if _, err := signer.Verify(tok); !errors.Is(err, ErrInvalid) {
			t.Errorf("Verify(%q) error = %v, want ErrInvalid", tok, err)
		}
	}
}
