package sadad

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"strings"
)

// ChecksumField carries the signature in both requests and callbacks.
const ChecksumField = "checksumhash"

const (
	saltLength = 4
	saltChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// The gateway fixes this IV for every merchant.
var iv = []byte("@@@@&&&&####$$$$")

var (
	ErrInvalidKey      = errors.New("sadad: merchant key must be 16, 24 or 32 bytes")
	ErrInvalidChecksum = errors.New("sadad: invalid checksum")
)

// Sign computes the checksum for values. The checksum field itself is ignored.
func Sign(values map[string]string, key string) (string, error) {
	salt, err := randomSalt(rand.Reader)
	if err != nil {
		return "", err
	}
	return signWithSalt(values, key, salt)
}

// Verify reports whether checksum matches values under key.
func Verify(values map[string]string, key, checksum string) error {
	plain, err := decrypt(checksum, key)
	if err != nil || len(plain) <= saltLength {
		return ErrInvalidChecksum
	}
	salt := plain[len(plain)-saltLength:]
	if subtle.ConstantTimeCompare([]byte(plain), []byte(digest(values, salt))) != 1 {
		return ErrInvalidChecksum
	}
	return nil
}

func signWithSalt(values map[string]string, key, salt string) (string, error) {
	return encrypt(digest(values, salt), key)
}

// digest is sha256(v1|v2|...|salt) in key order, hex encoded, followed by the salt.
func digest(values map[string]string, salt string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == ChecksumField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		v := values[k]
		if v == "null" {
			v = ""
		}
		parts = append(parts, v)
	}
	parts = append(parts, salt)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]) + salt
}

func encrypt(plain, key string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", ErrInvalidKey
	}
	padded := pkcs5Pad([]byte(plain), block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decrypt(encoded, key string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", ErrInvalidKey
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		return "", ErrInvalidChecksum
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)
	plain, err := pkcs5Unpad(out, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs5Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrInvalidChecksum
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidChecksum
		}
	}
	return b[:len(b)-n], nil
}

func randomSalt(r io.Reader) (string, error) {
	buf := make([]byte, saltLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	for i, c := range buf {
		buf[i] = saltChars[int(c)%len(saltChars)]
	}
	return string(buf), nil
}
