// Package polyv downloads and decrypts videos protected by PolyV HLS
// encryption (versions 11, 12 and 13).
package polyv

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func pkcs7Padding(data []byte, blockSize int) []byte {
	padding := blockSize - (len(data) % blockSize)
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(data, padText...)
}

func pkcs7Unpadding(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrCipher)
	}

	paddingLength := int(data[len(data)-1])
	if paddingLength < 1 || paddingLength > blockSize || paddingLength > len(data) {
		return nil, fmt.Errorf("%w: invalid padding length: %d", ErrCipher, paddingLength)
	}
	for _, b := range data[len(data)-paddingLength:] {
		if int(b) != paddingLength {
			return nil, fmt.Errorf("%w: invalid padding byte: %d", ErrCipher, b)
		}
	}

	return data[:len(data)-paddingLength], nil
}

func decryptAESRaw(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrMalformedInput, len(ciphertext))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv length %d", ErrMalformedInput, len(iv))
	}

	mode := cipher.NewCBCDecrypter(block, iv)

	plaintext := make([]byte, len(ciphertext))
	mode.CryptBlocks(plaintext, ciphertext)

	return plaintext, nil
}

func decryptAES(key, iv, ciphertext []byte) ([]byte, error) {
	plaintext, err := decryptAESRaw(key, iv, ciphertext)
	if err != nil {
		return nil, err
	}

	unpaddedPlaintext, err := pkcs7Unpadding(plaintext, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	return unpaddedPlaintext, nil
}

func encryptAES(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	padded := pkcs7Padding(append([]byte(nil), plaintext...), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode hex: %w", ErrDecode, err)
	}
	return b, nil
}

func decodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %w", ErrDecode, err)
	}
	return b, nil
}

// truncateHex renders at most n bytes of b as hex for debug output.
func truncateHex(b []byte, n int) string {
	if len(b) <= n {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:n]) + " (truncated)"
}
