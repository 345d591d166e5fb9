package polyv

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	tokenCipherAlphabet = "lpmkenjibhuvgycftxdrzsoawq0126783459"
	tokenPlainAlphabet  = "abcdofghijklnmepqrstuvwxyz0123456789"
)

// DeriveKey turns the key blob served by the key URL into the AES key of the
// video's fragments. seed is the seed_const of the video descriptor and
// tokenID the identifier returned by ParseTokenID.
func DeriveKey(gen Generation, blob []byte, seed int, tokenID string) ([]byte, error) {
	spec, err := specOf(gen)
	if err != nil {
		return nil, err
	}

	if len(blob) == 0 || len(blob)%16 != 0 {
		return nil, fmt.Errorf("%w: key blob length %d is not a multiple of 16", ErrMalformedInput, len(blob))
	}

	keyMaterial, err := spec.keyMaterial(seed, tokenID)
	if err != nil {
		return nil, err
	}

	shuffled, err := decryptAES(keyMaterial, keyIV, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt key blob: %w", err)
	}

	key, err := spec.unshuffleKey(shuffled)
	if err != nil {
		return nil, fmt.Errorf("unshuffle key: %w", err)
	}

	return key, nil
}

// keyMaterial derives the 16 ASCII characters used as the AES key for the blob.
func (s *generationSpec) keyMaterial(seed int, tokenID string) ([]byte, error) {
	seedInput := strconv.Itoa(seed)
	if s.saltSeedHash {
		seedInput = s.salt + seedInput
	}
	shifted := caesarShift([]byte(md5Hex([]byte(seedInput))), seed, s.caseAwareShift)

	plainToken, err := unshuffleToken(tokenID)
	if err != nil {
		return nil, err
	}
	tokenHash := permuteHash(md5Hex([]byte(plainToken)), s.hashTable)

	parts := map[digestPart][]byte{
		partSalt:    []byte(s.salt),
		partShifted: shifted,
		partToken:   tokenHash,
	}

	var digestInput []byte
	for _, p := range s.digestOrder {
		digestInput = append(digestInput, parts[p]...)
	}

	digest := md5Hex(digestInput)
	return []byte(digest[s.keyOffset : s.keyOffset+16]), nil
}

// caesarShift moves every byte forward by shift positions within a 26 letter
// alphabet. Bytes outside a-z land in it too, which is how hex digits are
// mapped.
func caesarShift(in []byte, shift int, caseAware bool) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		base := 97
		if caseAware && b >= 'A' && b <= 'Z' {
			base = 65
		}

		shifted := (shift + int(b) - base) % 26
		if shifted < 0 {
			shifted += 26
		}
		out[i] = byte(base + shifted)
	}
	return out
}

func unshuffleToken(token string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(token))

	for i, c := range token {
		idx := strings.IndexRune(tokenCipherAlphabet, c)
		if idx < 0 {
			return "", fmt.Errorf("%w: token character %q at %d", ErrMalformedInput, c, i)
		}
		sb.WriteByte(tokenPlainAlphabet[idx])
	}
	return sb.String(), nil
}

func permuteHash(hash string, table [32]int) []byte {
	out := make([]byte, len(table))
	for i, j := range table {
		out[i] = hash[j]
	}
	return out
}

// ParseTokenID extracts the identifier fed to DeriveKey from a playback token:
// the last dash separated segment without its leading character.
func ParseTokenID(token string) (string, error) {
	idx := strings.LastIndexByte(token, '-')
	last := token[idx+1:]
	if len(last) < 1 {
		return "", fmt.Errorf("%w: token %q has no identifier segment", ErrMalformedInput, token)
	}
	return last[1:], nil
}

// KeyURL rewrites the key URL of a playlist to the generation's playsafe
// endpoint and attaches the playback token.
func KeyURL(gen Generation, keyURL, token string) (string, error) {
	spec, err := specOf(gen)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(keyURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse key url: %w", ErrMalformedInput, err)
	}

	u.Path = spec.keyPath + u.Path
	u.RawPath = ""

	query := u.Query()
	query.Set("token", token)
	u.RawQuery = query.Encode()

	return u.String(), nil
}
