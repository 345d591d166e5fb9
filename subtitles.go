package polyv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evilsocket/islazy/log"
	"golang.org/x/sync/errgroup"
)

// DownloadSubtitles saves every subtitle track of the video next to it as
// "<title>.<track>.srt" and returns the written paths.
func (s *Session) DownloadSubtitles(ctx context.Context) ([]string, error) {
	if s.video == nil {
		return nil, fmt.Errorf("%w: video not loaded", ErrConfig)
	}
	if len(s.video.Srt) == 0 {
		log.Warning("unable to download subtitles, none available")
		return nil, nil
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := make([]string, len(s.video.Srt))
	g, gctx := errgroup.WithContext(ctx)

	for i, srt := range s.video.Srt {
		i, srt := i, srt
		g.Go(func() error {
			text, err := s.client.GetString(gctx, srt.URL)
			if err != nil {
				return fmt.Errorf("get subtitle %s: %w", srt.Title, err)
			}

			name := fmt.Sprintf("%s.%s.srt", s.baseName(), sanitizeFileName(srt.Title))
			path := filepath.Join(s.outputDir, name)
			if err = os.WriteFile(path, []byte(text), 0o644); err != nil {
				return fmt.Errorf("write subtitle %s: %w", srt.Title, err)
			}

			log.Info("subtitle: %s", name)
			paths[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
