package polyv

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/evilsocket/islazy/log"
	"golang.org/x/sync/errgroup"
)

const fragmentExt = ".bin"

// Fetcher retrieves the body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Progress is called once per completed fragment. It may be called
// concurrently.
type Progress func(done, total int)

// FragmentTask is one fragment of a playlist.
type FragmentTask struct {
	Index int
	URL   string
}

// Pipeline downloads and decrypts the fragments of a playlist concurrently
// and merges them in playlist order.
type Pipeline struct {
	Fetcher    Fetcher
	Generation Generation
	Key        []byte
	// IV defaults to the playlist's IV.
	IV []byte
	// MaxConcurrency bounds the number of fragments in flight, at least 1.
	MaxConcurrency int
	// TempDir receives one file per decrypted fragment. Anything already in it
	// is removed when Run starts.
	TempDir  string
	Progress Progress
}

// Run fetches and decrypts every fragment of p into TempDir, then writes
// them to w in order. The first failure cancels the remaining fragments and
// nothing is written.
func (pl *Pipeline) Run(ctx context.Context, p *Playlist, w io.Writer) error {
	if pl.Fetcher == nil {
		return fmt.Errorf("%w: pipeline has no fetcher", ErrConfig)
	}
	if pl.TempDir == "" {
		return fmt.Errorf("%w: pipeline has no temp dir", ErrConfig)
	}
	iv := pl.IV
	if len(iv) == 0 {
		iv = p.IV
	}

	if err := os.RemoveAll(pl.TempDir); err != nil {
		return fmt.Errorf("clear temp dir: %w", err)
	}
	if err := os.MkdirAll(pl.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	tasks := make([]FragmentTask, len(p.Fragments))
	for i, u := range p.Fragments {
		tasks[i] = FragmentTask{Index: i, URL: u}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(pl.MaxConcurrency, 1))

	var done atomic.Int64
	total := len(tasks)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := pl.runTask(gctx, task, iv); err != nil {
				return err
			}

			n := done.Add(1)
			if pl.Progress != nil {
				pl.Progress(int(n), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return MergeFragments(pl.TempDir, w)
}

func (pl *Pipeline) runTask(ctx context.Context, task FragmentTask, iv []byte) error {
	data, err := pl.Fetcher.Fetch(ctx, task.URL)
	if err != nil {
		return fmt.Errorf("fetch fragment %d: %w", task.Index, err)
	}
	log.Debug("downloaded fragment %d (%d bytes)", task.Index, len(data))

	plain, err := DecryptFragment(pl.Generation, pl.Key, iv, data, task.Index)
	if err != nil {
		return err
	}

	name := filepath.Join(pl.TempDir, strconv.Itoa(task.Index)+fragmentExt)
	if err = os.WriteFile(name, plain, 0o644); err != nil {
		return fmt.Errorf("write fragment %d: %w", task.Index, err)
	}
	return nil
}

// MergeFragments concatenates the fragment files of dir into w in numeric
// index order. Files whose name is not a number are ignored.
func MergeFragments(dir string, w io.Writer) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read fragment dir: %w", err)
	}

	type fragment struct {
		index int
		path  string
	}

	var fragments []fragment
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fragmentExt) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(name, fragmentExt))
		if err != nil {
			continue
		}
		fragments = append(fragments, fragment{index: idx, path: filepath.Join(dir, name)})
	}

	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].index < fragments[j].index
	})

	for _, f := range fragments {
		if err = appendFile(w, f.path); err != nil {
			return fmt.Errorf("merge fragment %d: %w", f.index, err)
		}
	}
	return nil
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
