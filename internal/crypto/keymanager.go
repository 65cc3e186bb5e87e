// Package crypto provides private-key management and transaction signing
// for the order submission path.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations is the OWASP-recommended minimum for HMAC-SHA256.
	kdfIterations  = 480_000
	kdfSaltBytes   = 16
	aesKeyBytes    = 32
	keyfileVersion = 1
)

// keyfile is the on-disk format for an encrypted private key. All binary
// fields are standard base64.
type keyfile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig carries the information LoadKey needs to resolve a private key.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded private key (with or without 0x
	// prefix). If non-empty, LoadKey returns it directly.
	RawPrivateKey string

	// EncryptedKeyPath is the path to a JSON file produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// sealerFor derives the AES-256-GCM AEAD for a password and salt via
// PBKDF2-HMAC-SHA256.
func sealerFor(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, kdfIterations, aesKeyBytes, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: entropy: %w", err)
	}
	return b, nil
}

// EncryptKey encrypts a hex-encoded private key under a password and returns
// the keyfile JSON suitable for writing to disk.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(keyBytes))
	}

	salt, err := randomBytes(kdfSaltBytes)
	if err != nil {
		return nil, err
	}
	gcm, err := sealerFor(password, salt)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(keyfile{
		Version:    keyfileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey reverses EncryptKey, returning the hex-encoded private key
// without the 0x prefix.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse keyfile: %w", err)
	}
	if kf.Version != keyfileVersion {
		return "", fmt.Errorf("crypto: unsupported keyfile version %d", kf.Version)
	}

	fields := [3][]byte{}
	for i, encoded := range []string{kf.Salt, kf.Nonce, kf.Ciphertext} {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("crypto: decode keyfile field: %w", err)
		}
		fields[i] = decoded
	}
	salt, nonce, ciphertext := fields[0], fields[1], fields[2]

	gcm, err := sealerFor(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt keyfile (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves a private key: a raw hex key wins, then an encrypted
// keyfile, otherwise an error.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: RawPrivateKey is not valid hex: %w", err)
		}
		return k, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read keyfile: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no private key source configured (set RawPrivateKey or EncryptedKeyPath)")
}
