package polyv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// VideoJSONURL is the endpoint serving the encrypted video descriptor.
const VideoJSONURL = "https://player.polyv.net/secure/%s.json"

// Subtitle is a subtitle track of a video.
type Subtitle struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// VideoDescriptor is the decrypted video JSON. Index i of Resolution, Hls,
// TsFileSize, FileSize and Mp4 refers to the same rendition.
type VideoDescriptor struct {
	SeedConst  int        `json:"seed_const"`
	Seed       int        `json:"seed"`
	Resolution []string   `json:"resolution"`
	Bitrate    string     `json:"out_br,omitempty"`
	TsFileSize []int64    `json:"tsfilesize,omitempty"`
	FileSize   []int64    `json:"filesize,omitempty"`
	HlsPrivate *int       `json:"hlsPrivate,omitempty"`
	Hls        []string   `json:"hls,omitempty"`
	H5PcMp4    []string   `json:"h5pcmp4,omitempty"`
	Mp4        []string   `json:"mp4,omitempty"`
	Title      string     `json:"title"`
	Duration   string     `json:"duration"`
	Srt        []Subtitle `json:"srt,omitempty"`
}

type envelope struct {
	Body string `json:"body"`
}

// IsHLS reports whether the video is served as encrypted HLS rather than a
// single MP4 file.
func (v *VideoDescriptor) IsHLS() bool {
	return v.Seed != 0
}

// Generation returns the protocol generation selected by the hlsPrivate marker.
func (v *VideoDescriptor) Generation() (Generation, error) {
	return GenerationFromMarker(v.HlsPrivate)
}

// Validate checks that every per-rendition list lines up with Resolution.
func (v *VideoDescriptor) Validate() error {
	n := len(v.Resolution)
	if n == 0 {
		return fmt.Errorf("%w: video has no renditions", ErrDecode)
	}

	lists := map[string]int{"filesize": len(v.FileSize), "tsfilesize": len(v.TsFileSize)}
	if v.IsHLS() {
		lists["hls"] = len(v.Hls)
		if len(v.Hls) == 0 {
			return fmt.Errorf("%w: hls video has no manifest urls", ErrDecode)
		}
	} else {
		lists["mp4"] = len(v.Mp4)
		if len(v.Mp4) == 0 {
			return fmt.Errorf("%w: mp4 video has no file urls", ErrDecode)
		}
	}

	for name, l := range lists {
		if l != 0 && l != n {
			return fmt.Errorf("%w: %s has %d entries, resolution has %d", ErrDecode, name, l, n)
		}
	}
	return nil
}

// ResolutionIndex returns the rendition index of label, or -1.
func (v *VideoDescriptor) ResolutionIndex(label string) int {
	for i, r := range v.Resolution {
		if r == label {
			return i
		}
	}
	return -1
}

// QualityString describes rendition i, e.g. "720p, 1200 kbps (2.5 MB)".
func (v *VideoDescriptor) QualityString(i int) string {
	s := v.Resolution[i]

	if v.Bitrate != "" {
		if brs := strings.Split(v.Bitrate, ","); i < len(brs) {
			s += fmt.Sprintf(", %s kbps", strings.TrimSpace(brs[i]))
		}
	}

	sizes := v.FileSize
	if v.IsHLS() {
		sizes = v.TsFileSize
	}
	if i < len(sizes) {
		s += fmt.Sprintf(" (%s MB)", strconv.FormatFloat(float64(sizes[i])/1e6, 'f', -1, 64))
	}
	return s
}

// DecryptVideoJSON decrypts the hex body of the video JSON envelope. Key and
// IV are the two halves of the MD5 hex digest of videoURI.
func DecryptVideoJSON(body, videoURI string) (*VideoDescriptor, error) {
	ciphertext, err := decodeHex(strings.TrimSpace(body))
	if err != nil {
		return nil, err
	}

	uriHash := md5Hex([]byte(videoURI))
	encoded, err := decryptAES([]byte(uriHash[:16]), []byte(uriHash[16:]), ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt video json: %w", err)
	}

	plain, err := decodeBase64(string(encoded))
	if err != nil {
		return nil, err
	}

	v := &VideoDescriptor{}
	if err = json.Unmarshal(plain, v); err != nil {
		return nil, fmt.Errorf("%w: unmarshal video json: %w", ErrDecode, err)
	}

	if _, err = v.Generation(); err != nil {
		return nil, err
	}
	if err = v.Validate(); err != nil {
		return nil, err
	}

	return v, nil
}

// DecryptManifest decrypts the base64 body of a private HLS manifest served to
// V12 and V13 videos.
func DecryptManifest(gen Generation, body string, seedConst int) (string, error) {
	spec, err := specOf(gen)
	if err != nil {
		return "", err
	}
	if spec.manifestConstant == "" {
		return "", fmt.Errorf("%w: %s has no private manifest", ErrConfig, gen)
	}

	ciphertext, err := decodeBase64(strings.TrimSpace(body))
	if err != nil {
		return "", err
	}

	key := md5Hex([]byte(spec.manifestConstant + strconv.Itoa(seedConst)))[1:17]
	plain, err := decryptAES([]byte(key), spec.manifestIV, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt manifest: %w", err)
	}

	return string(plain), nil
}

// parseEnvelope extracts the body of a {"body": "..."} response.
func parseEnvelope(data []byte) (string, error) {
	e := envelope{}
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("%w: unmarshal envelope: %w", ErrDecode, err)
	}
	if e.Body == "" {
		return "", fmt.Errorf("%w: envelope has no body", ErrDecode)
	}
	return e.Body, nil
}
