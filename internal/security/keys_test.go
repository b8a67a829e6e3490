package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPEMInline(t *testing.T) {
	b, err := LoadPEM(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if !strings.Contains(string(b), "-----BEGIN") {
		t.Error("inline PEM not returned verbatim")
	}
}

func TestLoadPEMUnescapesNewlines(t *testing.T) {
	escaped := strings.ReplaceAll(testPublicKeyPEM, "\n", `\n`)
	b, err := LoadPEM(escaped)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if strings.Contains(string(b), `\n`) {
		t.Error("literal \\n sequences not unescaped")
	}
	if _, err := ParsePublicKey(string(b)); err != nil {
		t.Errorf("unescaped PEM does not parse: %v", err)
	}
}

func TestLoadPEMFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(testPrivateKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := LoadPEM(path)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(b) != testPrivateKeyPEM {
		t.Error("file content mismatch")
	}
}

func TestLoadPEMErrors(t *testing.T) {
	if _, err := LoadPEM(""); err == nil {
		t.Error("empty input accepted")
	}
	if _, err := LoadPEM(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestParseKeyPair(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if signer.Public() == nil {
		t.Fatal("nil public key from signer")
	}
	if alg := KeyAlg(pub); alg != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", alg)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	garbage := "-----BEGIN GARBAGE-----\nAAAA\n-----END GARBAGE-----"
	if _, err := ParsePrivateKey(garbage); err == nil {
		t.Error("garbage private key accepted")
	}
	if _, err := ParsePublicKey(garbage); err == nil {
		t.Error("garbage public key accepted")
	}
}

func TestKeyAlgUnknownType(t *testing.T) {
	if alg := KeyAlg("not a key"); alg != "" {
		t.Errorf("KeyAlg = %q, want empty", alg)
	}
}
