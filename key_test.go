package polyv

import (
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSeed  = 12345
	testToken = "85fc0eb0-c3ce-4c80-84ef-dbb3aa1cab99-t0"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name     string
		gen      Generation
		blob     string
		seed     int
		tokenID  string
		expected string
	}{
		{
			name:     "v11",
			gen:      V11,
			blob:     "1c1674adf59cb96957297511fc36fd1be62bc5758f598e7fa9207f40204e2924",
			seed:     testSeed,
			tokenID:  "0",
			expected: "101112131415161718191a1b1c1d1e1f",
		},
		{
			name:     "v12",
			gen:      V12,
			blob:     "c1715d5cddbe2b6591b33313e0dd16c775da76f3c9a339f200207bd3c6e4384b",
			seed:     testSeed,
			tokenID:  "k3bq9x",
			expected: "a0a1a2a3a4a5a6a7a8a9aaabacadaeaf",
		},
		{
			name:     "v13",
			gen:      V13,
			blob:     "c2d4085294ce01daf5a6a21b3b6d862e86da2e739304effb5649e9112f8a9617",
			seed:     testSeed,
			tokenID:  "zw7e1lp",
			expected: "030a11181f262d343b424950575e656c",
		},
		{
			name:     "v13 non square key",
			gen:      V13,
			blob:     "1245590c6dac2d54befb6c36597517768399f8e5d75d40cfa61ddf3babbce2d4",
			seed:     777,
			tokenID:  "ab12",
			expected: "282c303438292d3135392a2e32363a2b",
		},
	}

	for _, tt := range tests {
		key, err := DeriveKey(tt.gen, mustHex(t, tt.blob), tt.seed, tt.tokenID)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, hex.EncodeToString(key), tt.name)
	}
}

func TestKeyMaterial(t *testing.T) {
	tests := []struct {
		gen      Generation
		tokenID  string
		expected string
	}{
		{V11, "0", "d479c5a36c0fd50b"},
		{V12, "k3bq9x", "63fe03f9d9e27340"},
		{V13, "zw7e1lp", "da5fae35c7014296"},
	}

	for _, tt := range tests {
		spec, err := specOf(tt.gen)
		require.NoError(t, err)

		km, err := spec.keyMaterial(testSeed, tt.tokenID)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, string(km), tt.gen.String())
	}
}

func TestDeriveKeyErrors(t *testing.T) {
	blob := mustHex(t, "1c1674adf59cb96957297511fc36fd1be62bc5758f598e7fa9207f40204e2924")

	_, err := DeriveKey(V11, blob[:20], testSeed, "0")
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = DeriveKey(V11, nil, testSeed, "0")
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = DeriveKey(V11, blob, testSeed, "0-!")
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = DeriveKey(V11, blob, testSeed, "A")
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = DeriveKey(Generation(10), blob, testSeed, "0")
	assert.ErrorIs(t, err, ErrConfig)

	// wrong seed gives wrong key material, so the padding check fails
	_, err = DeriveKey(V11, blob, testSeed+1, "0")
	assert.Error(t, err)
}

func TestCaesarShift(t *testing.T) {
	tests := []struct {
		input     string
		shift     int
		caseAware bool
		expected  string
	}{
		{"abc", 1, false, "bcd"},
		{"xyz", 3, false, "abc"},
		{"abc", -1, false, "zab"},
		{"abc", 27, false, "bcd"},
		{"ABC", 1, true, "BCD"},
		{"ABC", 1, false, "vwx"},
		// digits fall below the lowercase base and wrap into it
		{"0", 0, false, "d"},
		{"0", 0, true, "d"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, string(caesarShift([]byte(tt.input), tt.shift, tt.caseAware)), tt.input)
	}
}

func TestUnshuffleToken(t *testing.T) {
	plain, err := unshuffleToken("lpmkenjibhuvgycftxdrzsoawq0126783459")
	require.NoError(t, err)
	assert.Equal(t, "abcdofghijklnmepqrstuvwxyz0123456789", plain)

	_, err = unshuffleToken("abc-")
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestParseTokenID(t *testing.T) {
	id, err := ParseTokenID(testToken)
	require.NoError(t, err)
	assert.Equal(t, "0", id)

	id, err = ParseTokenID("abc-xk3bq9x")
	require.NoError(t, err)
	assert.Equal(t, "k3bq9x", id)

	_, err = ParseTokenID("abc-")
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestKeyURL(t *testing.T) {
	tests := []struct {
		gen  Generation
		path string
	}{
		{V11, "/playsafe/v1104/key/abc_1.key"},
		{V12, "/playsafe/v12/key/abc_1.key"},
		{V13, "/playsafe/v13/key/abc_1.key"},
	}

	for _, tt := range tests {
		raw, err := KeyURL(tt.gen, "https://hls.videocc.net/key/abc_1.key?pid=1", testToken)
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "hls.videocc.net", u.Host)
		assert.Equal(t, tt.path, u.Path)
		assert.Equal(t, testToken, u.Query().Get("token"))
		assert.Equal(t, "1", u.Query().Get("pid"))
	}
}
