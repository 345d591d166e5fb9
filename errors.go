package polyv

import "errors"

var (
	// ErrMalformedInput reports key material or tokens with an unexpected shape.
	ErrMalformedInput = errors.New("malformed input")
	// ErrCipher reports ciphertext that is too short or carries bad padding.
	ErrCipher = errors.New("cipher error")
	// ErrDecode reports bad hex, base64 or JSON.
	ErrDecode = errors.New("decode error")
	// ErrStreamFormat reports a transport stream that cannot be deobfuscated.
	ErrStreamFormat = errors.New("stream format error")
	// ErrFetch reports a network or HTTP status failure.
	ErrFetch = errors.New("fetch error")
	// ErrConfig reports an unsupported generation or an invalid session setting.
	ErrConfig = errors.New("config error")
)
