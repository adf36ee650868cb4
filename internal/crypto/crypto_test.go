package crypto

import "testing"

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("test-master-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ciphertext, err := enc.Encrypt("sk-provider-secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if ciphertext == "sk-provider-secret" {
		t.Fatal("ciphertext must differ from plaintext")
	}

	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plaintext != "sk-provider-secret" {
		t.Errorf("round trip mismatch: %q", plaintext)
	}
}

func TestEncryptor_DistinctCiphertexts(t *testing.T) {
	enc, _ := NewEncryptor("key")

	a, _ := enc.Encrypt("same")
	b, _ := enc.Encrypt("same")
	if a == b {
		t.Error("nonce reuse: identical ciphertexts for identical plaintexts")
	}
}

func TestEncryptor_WrongKey(t *testing.T) {
	enc1, _ := NewEncryptor("key-one")
	enc2, _ := NewEncryptor("key-two")

	ciphertext, _ := enc1.Encrypt("secret")
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("decrypt with wrong key must fail")
	}
}

func TestEncryptor_InvalidCiphertext(t *testing.T) {
	enc, _ := NewEncryptor("key")

	if _, err := enc.Decrypt("AA=="); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
	if _, err := enc.Decrypt("not base64 !!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	if HashAPIKey("pg-key") != HashAPIKey("pg-key") {
		t.Error("hash must be deterministic")
	}
	if HashAPIKey("a") == HashAPIKey("b") {
		t.Error("different keys must hash differently")
	}
	if len(HashAPIKey("x")) != 64 {
		t.Error("expected hex sha256 length")
	}
}
