package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// separator joins the ciphertext and the IV before encoding.
const separator = "::"

var (
	camelWord  = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	camelBreak = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// Derive encrypts address under key and returns the encoded identifier.
// key must be a valid AES key (16, 24 or 32 bytes); its first 16 bytes are
// used as the IV.
func Derive(key, address string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("identity: %w", err)
	}
	iv := []byte(key[:block.BlockSize()])

	ciphertext := encryptCFB8(block, iv, []byte(address))

	raw := make([]byte, 0, len(ciphertext)+len(separator)+len(iv))
	raw = append(raw, ciphertext...)
	raw = append(raw, separator...)
	raw = append(raw, iv...)
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Address formats the plaintext device address: the snake-cased profile
// name, the local IPv4 address and the host's listen port.
func Address(profileName, ip string, port int) string {
	return fmt.Sprintf("%s@%s:%d", SnakeCase(profileName), ip, port)
}

// SnakeCase converts "CamelCase Names" to "camel_case_names".
func SnakeCase(s string) string {
	s = camelWord.ReplaceAllString(s, "${1}_${2}")
	s = camelBreak.ReplaceAllString(s, "${1}_${2}")
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// encryptCFB8 is CFB with an 8-bit segment: each plaintext byte is XORed with
// the first byte of E(register), and the ciphertext byte is shifted into the
// register. crypto/cipher only offers full-block CFB.
func encryptCFB8(block cipher.Block, iv, src []byte) []byte {
	bs := block.BlockSize()
	register := make([]byte, bs)
	copy(register, iv)
	stream := make([]byte, bs)

	out := make([]byte, len(src))
	for i, p := range src {
		block.Encrypt(stream, register)
		c := p ^ stream[0]
		out[i] = c
		copy(register, register[1:])
		register[bs-1] = c
	}
	return out
}
