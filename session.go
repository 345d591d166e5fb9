package polyv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evilsocket/islazy/log"
)

// Session downloads one video. Load must be called before any other method.
type Session struct {
	creds      *Credentials
	client     *Client
	outputDir  string
	maxThreads int
	progress   Progress
	videoURL   string

	video *VideoDescriptor
	gen   Generation
}

type SessionOption func(*Session)

func defaultSessionOptions() []SessionOption {
	return []SessionOption{
		WithClient(NewClient()),
		WithOutputDir("."),
		WithMaxThreads(4),
		WithVideoJSONURL(VideoJSONURL),
	}
}

// WithClient sets the HTTP client. Connector cookies must be set on the
// same client.
func WithClient(c *Client) SessionOption {
	return func(s *Session) {
		s.client = c
	}
}

func WithOutputDir(dir string) SessionOption {
	return func(s *Session) {
		s.outputDir = dir
	}
}

// WithMaxThreads bounds the number of fragments downloaded at once.
func WithMaxThreads(n int) SessionOption {
	return func(s *Session) {
		s.maxThreads = n
	}
}

func WithProgress(p Progress) SessionOption {
	return func(s *Session) {
		s.progress = p
	}
}

// WithVideoJSONURL sets the format string of the video descriptor endpoint.
// It takes the video URI as its only argument.
func WithVideoJSONURL(format string) SessionOption {
	return func(s *Session) {
		s.videoURL = format
	}
}

// NewSession creates a new Session.
//
// Get credentials by calling NewCredentials.
func NewSession(creds *Credentials, opts ...SessionOption) *Session {
	if creds == nil {
		panic("credentials cannot be nil")
	}

	s := &Session{
		creds: creds,
	}

	for _, opt := range defaultSessionOptions() {
		opt(s)
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load fetches and decrypts the video descriptor.
func (s *Session) Load(ctx context.Context) error {
	log.Info("loading video uri %s...", s.creds.VideoURI)

	data, err := s.client.GetBytes(ctx, fmt.Sprintf(s.videoURL, s.creds.VideoURI))
	if err != nil {
		return fmt.Errorf("get video json: %w", err)
	}

	body, err := parseEnvelope(data)
	if err != nil {
		return err
	}

	video, err := DecryptVideoJSON(body, s.creds.VideoURI)
	if err != nil {
		return err
	}

	gen, err := video.Generation()
	if err != nil {
		return err
	}

	s.video = video
	s.gen = gen

	log.Info("polyv version: %s", gen)
	return nil
}

func (s *Session) Video() *VideoDescriptor {
	return s.video
}

func (s *Session) Generation() Generation {
	return s.gen
}

// Download saves the rendition labelled resolution into the output
// directory and returns the path of the file. An empty resolution selects the
// last, usually highest, rendition.
func (s *Session) Download(ctx context.Context, resolution string) (string, error) {
	if s.video == nil {
		return "", fmt.Errorf("%w: video not loaded", ErrConfig)
	}

	idx := len(s.video.Resolution) - 1
	if resolution != "" {
		idx = s.video.ResolutionIndex(resolution)
		if idx < 0 {
			return "", fmt.Errorf("%w: resolution %q not in %v", ErrConfig, resolution, s.video.Resolution)
		}
	}
	log.Info("quality: %s", s.video.QualityString(idx))

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	if !s.video.IsHLS() {
		return s.downloadMP4(ctx, idx)
	}
	return s.downloadHLS(ctx, idx)
}

func (s *Session) playlist(ctx context.Context, manifestURL string) (*Playlist, error) {
	var manifest string
	if s.gen == V11 {
		text, err := s.client.GetString(ctx, manifestURL)
		if err != nil {
			return nil, fmt.Errorf("get manifest: %w", err)
		}
		manifest = text
	} else {
		data, err := s.client.GetBytes(ctx, manifestURL)
		if err != nil {
			return nil, fmt.Errorf("get manifest: %w", err)
		}

		body, err := parseEnvelope(data)
		if err != nil {
			return nil, err
		}

		if manifest, err = DecryptManifest(s.gen, body, s.video.SeedConst); err != nil {
			return nil, err
		}
	}

	p, err := ParsePlaylist(manifest)
	if err != nil {
		return nil, err
	}
	if !p.Encrypted() {
		return nil, fmt.Errorf("%w: playlist has no key", ErrMalformedInput)
	}
	return p, nil
}

func (s *Session) key(ctx context.Context, p *Playlist) ([]byte, error) {
	keyURL, err := KeyURL(s.gen, p.KeyURL, s.creds.Token)
	if err != nil {
		return nil, err
	}
	log.Debug("key url: %s", keyURL)

	blob, err := s.client.GetBytes(ctx, keyURL)
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}

	tokenID, err := ParseTokenID(s.creds.Token)
	if err != nil {
		return nil, err
	}

	return DeriveKey(s.gen, blob, s.video.SeedConst, tokenID)
}

func (s *Session) downloadHLS(ctx context.Context, idx int) (string, error) {
	p, err := s.playlist(ctx, s.video.Hls[idx])
	if err != nil {
		return "", err
	}

	key, err := s.key(ctx, p)
	if err != nil {
		return "", err
	}
	log.Debug("hls key: %x iv: %x", key, p.IV)

	fragmentDir := filepath.Join(s.outputDir, s.creds.VideoURI)
	defer os.RemoveAll(fragmentDir)

	merged := filepath.Join(s.outputDir, s.creds.VideoURI+".ts")
	out, err := os.Create(merged)
	if err != nil {
		return "", fmt.Errorf("create merged file: %w", err)
	}

	pipeline := &Pipeline{
		Fetcher:        s.client,
		Generation:     s.gen,
		Key:            key,
		IV:             p.IV,
		MaxConcurrency: s.maxThreads,
		TempDir:        fragmentDir,
		Progress:       s.progress,
	}

	log.Info("downloading %d fragments...", len(p.Fragments))
	err = pipeline.Run(ctx, p, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(merged)
		return "", err
	}

	if s.gen == V13 {
		log.Info("deobfuscating...")
		if err = deobfuscateFile(merged); err != nil {
			_ = os.Remove(merged)
			return "", err
		}
	}

	final := filepath.Join(s.outputDir, s.baseName()+".ts")
	if err = os.Rename(merged, final); err != nil {
		_ = os.Remove(merged)
		return "", fmt.Errorf("rename merged file: %w", err)
	}

	log.Info("saved as: %s", final)
	return final, nil
}

func deobfuscateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read merged file: %w", err)
	}

	clean, err := Deobfuscate(data)
	if err != nil {
		return err
	}

	if err = os.WriteFile(path, clean, 0o644); err != nil {
		return fmt.Errorf("write merged file: %w", err)
	}
	return nil
}

func (s *Session) downloadMP4(ctx context.Context, idx int) (string, error) {
	if idx >= len(s.video.Mp4) {
		return "", fmt.Errorf("%w: no mp4 url for rendition %d", ErrDecode, idx)
	}

	final := filepath.Join(s.outputDir, s.baseName()+".mp4")
	part := final + ".part"

	log.Info("downloading mp4...")
	if err := s.client.DownloadToFile(ctx, s.video.Mp4[idx], part); err != nil {
		_ = os.Remove(part)
		return "", err
	}

	f, err := os.Open(part)
	if err != nil {
		return "", fmt.Errorf("open mp4: %w", err)
	}
	info, err := ProbeMP4(f)
	_ = f.Close()
	if err != nil {
		_ = os.Remove(part)
		return "", err
	}
	log.Debug("mp4: %d tracks, %s, fragmented=%t", info.Tracks, info.Duration, info.Fragmented)

	if err = os.Rename(part, final); err != nil {
		return "", fmt.Errorf("rename mp4: %w", err)
	}

	log.Info("saved as: %s", final)
	return final, nil
}

// baseName is the title made safe for use as a file name.
func (s *Session) baseName() string {
	name := sanitizeFileName(s.video.Title)
	if name == "" {
		return s.creds.VideoURI
	}
	return name
}

func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
	return strings.Trim(name, " .")
}
