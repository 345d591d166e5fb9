package polyv

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t require.TestingT, h string) []byte {
	b, err := hex.DecodeString(h)
	require.NoError(t, err)
	return b
}

func TestMD5Hex(t *testing.T) {
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", md5Hex([]byte("abc")))
}

func TestPKCS7Padding(t *testing.T) {
	tests := []struct {
		input     []byte
		blockSize int
		expected  []byte
	}{
		{[]byte{0x1, 0x2, 0x3, 0x10}, 8, []byte{0x1, 0x2, 0x3, 0x10, 0x4, 0x4, 0x4, 0x4}},
		{[]byte{0x1, 0x2, 0x3, 0x0, 0x0, 0x0, 0x0, 0x0}, 8, []byte{0x1, 0x2, 0x3, 0x0, 0x0, 0x0, 0x0, 0x0, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8}},
		{[]byte("polyv"), 16, []byte("polyv\x0b\x0b\x0b\x0b\x0b\x0b\x0b\x0b\x0b\x0b\x0b")},
		{[]byte(""), 10, []byte("\x0a\x0a\x0a\x0a\x0a\x0a\x0a\x0a\x0a\x0a")},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, pkcs7Padding(tt.input, tt.blockSize))
	}
}

func TestPKCS7Unpadding(t *testing.T) {
	tests := []struct {
		name      string
		input     []byte
		expected  []byte
		expectErr bool
	}{
		{"valid", []byte{0x1, 0x2, 0x3, 0x10, 0x4, 0x4, 0x4, 0x4}, []byte{0x1, 0x2, 0x3, 0x10}, false},
		{"full block", []byte{0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8}, []byte{}, false},
		{"zero length", []byte{0x1, 0x2, 0x3, 0x0}, nil, true},
		{"too long", []byte{0x1, 0x2, 0x3, 0x9}, nil, true},
		{"inconsistent", []byte{0x1, 0x2, 0x3, 0x2}, nil, true},
		{"empty", []byte{}, nil, true},
	}

	for _, tt := range tests {
		out, err := pkcs7Unpadding(tt.input, 8)
		if tt.expectErr {
			require.ErrorIs(t, err, ErrCipher, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, out, tt.name)
	}
}

func TestAESRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")

	for _, size := range []int{0, 1, 15, 16, 17, 1000} {
		plain := make([]byte, size)
		for i := range plain {
			plain[i] = byte(i * 7)
		}

		ct, err := encryptAES(key, iv, plain)
		require.NoError(t, err)
		assert.Equal(t, 0, len(ct)%16)

		out, err := decryptAES(key, iv, ct)
		require.NoError(t, err)
		assert.Equal(t, plain, out, "size %d", size)
	}
}

func TestDecryptAESErrors(t *testing.T) {
	key := []byte("0123456789abcdef")

	_, err := decryptAES(key, key, make([]byte, 15))
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = decryptAES([]byte("short"), key, make([]byte, 16))
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = decryptAES(key, key[:8], make([]byte, 16))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecodeErrors(t *testing.T) {
	_, err := decodeHex("zz")
	assert.ErrorIs(t, err, ErrDecode)

	_, err = decodeBase64("!!!")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestTruncateHex(t *testing.T) {
	assert.Equal(t, "0102", truncateHex([]byte{1, 2}, 4))
	assert.Equal(t, "01 (truncated)", truncateHex([]byte{1, 2}, 1))
}
