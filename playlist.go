package polyv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/grafov/m3u8"
)

// Playlist is a parsed media playlist. Fragments are in playback order.
type Playlist struct {
	Fragments []string
	// KeyURL and IV are both set for encrypted playlists.
	KeyURL string
	IV     []byte
}

// Encrypted reports whether the playlist names a key.
func (p *Playlist) Encrypted() bool {
	return p.KeyURL != ""
}

// ParsePlaylist parses a media playlist. Only absolute http(s) fragment URLs
// are kept; the first EXT-X-KEY provides the key URL and IV.
func ParsePlaylist(text string) (*Playlist, error) {
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return nil, fmt.Errorf("%w: decode playlist: %w", ErrDecode, err)
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("%w: not a media playlist", ErrMalformedInput)
	}

	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected playlist type %T", ErrMalformedInput, pl)
	}

	p := &Playlist{}
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		if strings.HasPrefix(seg.URI, "http") {
			p.Fragments = append(p.Fragments, seg.URI)
		}
	}

	key := media.Key
	if key == nil && len(media.Segments) > 0 && media.Segments[0] != nil {
		key = media.Segments[0].Key
	}
	if key == nil || key.URI == "" {
		return p, nil
	}

	iv, err := parseIV(key.IV)
	if err != nil {
		return nil, err
	}

	p.KeyURL = key.URI
	p.IV = iv
	return p, nil
}

func parseIV(s string) ([]byte, error) {
	if len(s) < 2 {
		return nil, fmt.Errorf("%w: key has no iv", ErrMalformedInput)
	}

	iv, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: decode iv: %w", ErrMalformedInput, err)
	}
	if len(iv) != 16 {
		return nil, fmt.Errorf("%w: iv is %d bytes", ErrMalformedInput, len(iv))
	}
	return iv, nil
}
