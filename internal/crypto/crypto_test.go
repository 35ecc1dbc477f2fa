package crypto

import (
	"crypto/rand"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	mnemonics := []string{
		"abandon ability able about above absent absorb abstract absurd abuse access accident account accuse achieve acid acoustic acquire across act action actor actress actual",
		"",
		"short",
	}

	for _, m := range mnemonics {
		blob, err := c.Encrypt(m)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", m, err)
		}
		got, err := c.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != m {
			t.Errorf("round trip = %q, want %q", got, m)
		}
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c1 := newTestCipher(t)
	c2 := newTestCipher(t)

	blob, err := c1.Encrypt("secret words")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c2.Decrypt(blob); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("Decrypt with wrong key = %v, want ErrDecryptFailed", err)
	}
}

func TestDecryptMalformedBlob(t *testing.T) {
	c := newTestCipher(t)

	for _, blob := range []string{"", "not base64 !!!", "dG9vc2hvcnQ="} {
		if _, err := c.Decrypt(blob); !errors.Is(err, ErrDecryptFailed) {
			t.Errorf("Decrypt(%q) = %v, want ErrDecryptFailed", blob, err)
		}
	}
}

func TestNewCipherRejectsBadKeySize(t *testing.T) {
	if _, err := NewCipher(make([]byte, 16)); err == nil {
		t.Error("NewCipher accepted a 16-byte key")
	}
}

func TestLoadCipherMainnetRequiresKey(t *testing.T) {
	log := zap.NewNop()

	if _, err := LoadCipher("", true, log); err == nil {
		t.Error("LoadCipher on mainnet without a key should fail")
	}
	if _, err := LoadCipher("###", true, log); err == nil {
		t.Error("LoadCipher on mainnet with a malformed key should fail")
	}
	if _, err := LoadCipher("", false, log); err != nil {
		t.Errorf("LoadCipher on testnet without a key should generate one, got %v", err)
	}
}
