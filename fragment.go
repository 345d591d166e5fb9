package polyv

import (
	"crypto/aes"
	"fmt"
)

// DecryptFragment decrypts one HLS fragment. index is the zero-based position
// of the fragment in the playlist and selects the header layout for V12 and V13.
func DecryptFragment(gen Generation, key, iv, ciphertext []byte, index int) ([]byte, error) {
	spec, err := specOf(gen)
	if err != nil {
		return nil, err
	}

	plaintext, err := decryptAES(key, iv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt fragment %d: %w", index, err)
	}

	if spec.headerBlockSize == 0 {
		return plaintext, nil
	}

	out, err := spec.decryptHeader(plaintext, index)
	if err != nil {
		return nil, fmt.Errorf("decrypt fragment %d header: %w", index, err)
	}
	return out, nil
}

// decryptHeader undoes the second encryption applied to the leading bytes of
// every V12/V13 fragment. The block after the header is xored with the fragment
// index and takes the place of the header's padding block.
func (s *generationSpec) decryptHeader(data []byte, index int) ([]byte, error) {
	cipherSize := (index%5 + 1) * s.headerBlockSize
	headerSize := cipherSize + aes.BlockSize

	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: fragment is %d bytes, header needs %d", ErrCipher, len(data), headerSize)
	}

	remaining := len(data) - headerSize
	xorSize := min(remaining, aes.BlockSize)

	header, err := decryptAESRaw(s.headerKey, s.headerIV, data[:headerSize])
	if err != nil {
		return nil, err
	}
	header[0] = 0x47

	out := make([]byte, len(data)-xorSize)
	copy(out, header)

	xorValue := byte(index % 19)
	for i := 0; i < xorSize; i++ {
		out[cipherSize+i] = data[headerSize+i] ^ xorValue
	}

	if remaining > xorSize {
		copy(out[headerSize:], data[headerSize+xorSize:])
	}

	return out, nil
}
