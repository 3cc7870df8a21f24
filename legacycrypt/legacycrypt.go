// Package legacycrypt reimplements the watch vendor's native cipher and
// signature routines: DES/ECB with keys derived from hardcoded seeds, and
// keyed MD5 signing. The scheme has no security value; it exists solely for
// wire compatibility with the device firmware, which obscures the geo field
// of location uploads and signs HTTP parameters with it.
package legacycrypt

import (
	"bytes"
	"crypto/des" //nolint:gosec // protocol compatibility, not security
	"crypto/md5" //nolint:gosec // protocol compatibility, not security
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// magicXOR seeds key derivation. Derivation reads from the second byte on.
var magicXOR = []byte("K01ABab98DES part of OpenSSL 1.0.0a 1 Jun 2010")

// desSeeds holds the per-key-type seed words, packed little-endian.
var desSeeds = map[int][2]uint32{
	1: {0x61572706, 0x0b7a1112},
	2: {0xd5871247, 0x1e1fe526},
	3: {0x04e702a3, 0x5b1a05f6},
	4: {0xe4620226, 0xee0f05d7},
	5: {0x04c22753, 0x0e5a6102},
}

// md5Seeds holds the per-key-type signing seeds, packed little-endian.
var md5Seeds = map[int][8]uint32{
	1: {0x61572706, 0x0b7a1112, 0x04172276, 0xbb0f2422,
		0x21d242a3, 0x7e7f4107, 0x24073233, 0x6bba7432},
	2: {0x04c22753, 0x0e5a6102, 0x54775226, 0x7e7a0122,
		0x54276726, 0x1e1a41e2, 0x41270773, 0x4b1a3452},
}

// deriveKey XORs the seed with the magic string (offset 1) and swaps the
// high and low nibble of every byte.
func deriveKey(seed, xorKey []byte) []byte {
	out := make([]byte, len(seed))
	for i := range seed {
		b := seed[i] ^ xorKey[i]
		out[i] = (b >> 4) | ((b & 0x0f) << 4)
	}
	return out
}

func packWords(words []uint32) []byte {
	out := make([]byte, 0, len(words)*4)
	for _, w := range words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

// desKey derives the 8-byte DES key for a key type.
func desKey(keyType int) ([]byte, error) {
	seed, ok := desSeeds[keyType]
	if !ok {
		return nil, fmt.Errorf("invalid DES key type %d", keyType)
	}
	return deriveKey(packWords(seed[:]), magicXOR[1:9]), nil
}

// md5Key derives the 32-byte signing key for a key type. The XOR key cycles
// the same 8 magic bytes across the full seed.
func md5Key(keyType int) ([]byte, error) {
	seed, ok := md5Seeds[keyType]
	if !ok {
		return nil, fmt.Errorf("invalid MD5 key type %d", keyType)
	}
	xorKey := bytes.Repeat(magicXOR[1:9], 4)
	return deriveKey(packWords(seed[:]), xorKey), nil
}

func pkcs5Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("padded data length %d not a multiple of %d", len(data), blockSize)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}

// Encrypt DES-encrypts plainText in ECB mode with the derived key.
func Encrypt(plainText string, keyType int) ([]byte, error) {
	key, err := desKey(keyType)
	if err != nil {
		return nil, err
	}
	block, err := des.NewCipher(key) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("init DES: %w", err)
	}

	data := pkcs5Pad([]byte(plainText), block.BlockSize())
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Encrypt(out[i:], data[i:])
	}
	return out, nil
}

// Decrypt DES-decrypts cipherText in ECB mode with the derived key.
func Decrypt(cipherText []byte, keyType int) (string, error) {
	key, err := desKey(keyType)
	if err != nil {
		return "", err
	}
	block, err := des.NewCipher(key) //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("init DES: %w", err)
	}
	if len(cipherText) == 0 || len(cipherText)%block.BlockSize() != 0 {
		return "", fmt.Errorf("ciphertext length %d not a multiple of block size", len(cipherText))
	}

	out := make([]byte, len(cipherText))
	for i := 0; i < len(cipherText); i += block.BlockSize() {
		block.Decrypt(out[i:], cipherText[i:])
	}
	unpadded, err := pkcs5Unpad(out, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// EncryptBase64 encrypts and base64-encodes in one step.
func EncryptBase64(plainText string, keyType int) (string, error) {
	enc, err := Encrypt(plainText, keyType)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

// DecryptBase64 base64-decodes and decrypts in one step.
func DecryptBase64(encoded string, keyType int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	return Decrypt(raw, keyType)
}

// Sign computes the keyed MD5 signature of text: md5(text || key), lower
// hex.
func Sign(text string, keyType int) (string, error) {
	key, err := md5Key(keyType)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(append([]byte(text), key...)) //nolint:gosec
	return hex.EncodeToString(sum[:]), nil
}

// SignParams signs a parameter map: keys sorted, joined as k=v&k=v, extra
// appended, then Sign.
func SignParams(params map[string]string, extra string, keyType int) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return Sign(strings.Join(parts, "&")+extra, keyType)
}

// Cipher adapts the package functions for callers that take the vendor
// crypto as a collaborator instead of calling it directly.
type Cipher struct{}

func (Cipher) EncryptBase64(plainText string, keyType int) (string, error) {
	return EncryptBase64(plainText, keyType)
}

func (Cipher) DecryptBase64(encoded string, keyType int) (string, error) {
	return DecryptBase64(encoded, keyType)
}

func (Cipher) Sign(text string, keyType int) (string, error) {
	return Sign(text, keyType)
}
