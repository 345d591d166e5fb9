package polyv

import (
	"context"
	"fmt"
	"strings"
)

// Connector resolves the video ID of a content host into PolyV credentials.
type Connector interface {
	Name() string
	// CookieName is the session cookie the host requires for token requests.
	CookieName() string
	CookieDomain() string
	VideoURI(ctx context.Context, videoID string) (string, error)
	Token(ctx context.Context, videoID string) (string, error)
}

// Credentials identify a video and authorize its key request.
type Credentials struct {
	VideoURI string
	Token    string
}

type CredentialSource func(ctx context.Context) (*Credentials, error)

// FromToken uses a video URI and playback token obtained elsewhere.
func FromToken(videoURI, token string) CredentialSource {
	return func(context.Context) (*Credentials, error) {
		return toCredentials(videoURI, token)
	}
}

// FromConnector asks a content host for the credentials of videoID.
func FromConnector(c Connector, videoID string) CredentialSource {
	return func(ctx context.Context) (*Credentials, error) {
		videoURI, err := c.VideoURI(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("get video uri from %s: %w", c.Name(), err)
		}

		token, err := c.Token(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("get token from %s: %w", c.Name(), err)
		}

		return toCredentials(videoURI, token)
	}
}

func NewCredentials(ctx context.Context, src CredentialSource) (*Credentials, error) {
	return src(ctx)
}

func toCredentials(videoURI, token string) (*Credentials, error) {
	if videoURI == "" {
		return nil, fmt.Errorf("%w: empty video uri", ErrMalformedInput)
	}
	// the uri names files and a scratch directory in the output directory
	if videoURI == "." || videoURI == ".." || strings.ContainsAny(videoURI, `/\`) {
		return nil, fmt.Errorf("%w: video uri %q is not a plain name", ErrMalformedInput, videoURI)
	}
	if _, err := ParseTokenID(token); err != nil {
		return nil, err
	}

	return &Credentials{
		VideoURI: videoURI,
		Token:    token,
	}, nil
}
