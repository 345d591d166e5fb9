package polyv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fragmentServer struct {
	bodies map[string][]byte
	delay  map[string]time.Duration
	fail   map[string]error
}

func (f *fragmentServer) Fetch(ctx context.Context, url string) ([]byte, error) {
	if d := f.delay[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	b, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", ErrFetch, url)
	}
	return b, nil
}

// encryptedPlaylist returns a playlist of n fragments, the server holding
// their ciphertexts and the expected merged plaintext.
func encryptedPlaylist(t *testing.T, gen Generation, key, iv []byte, n int) (*Playlist, *fragmentServer, []byte) {
	p := &Playlist{KeyURL: "https://hls.videocc.net/key/x_1.key", IV: iv}
	srv := &fragmentServer{bodies: map[string][]byte{}, delay: map[string]time.Duration{}, fail: map[string]error{}}

	var want []byte
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("https://hls.videocc.net/x/%d.ts", i)
		plain := testPlaintext(5400+i*188, byte(i))

		data := plain
		if gen != V11 {
			data = obscureHeader(t, gen, plain, i)
		}
		ct, err := encryptAES(key, iv, data)
		require.NoError(t, err)

		p.Fragments = append(p.Fragments, url)
		srv.bodies[url] = ct
		want = append(want, plain...)
	}
	return p, srv, want
}

func TestPipelineRun(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := byteRange(7, 16)

	for _, gen := range []Generation{V11, V12, V13} {
		p, srv, want := encryptedPlaylist(t, gen, key, iv, 6)
		srv.delay[p.Fragments[0]] = 50 * time.Millisecond

		var mu sync.Mutex
		var calls []int

		pl := &Pipeline{
			Fetcher:        srv,
			Generation:     gen,
			Key:            key,
			MaxConcurrency: 3,
			TempDir:        t.TempDir(),
			Progress: func(done, total int) {
				mu.Lock()
				defer mu.Unlock()
				assert.Equal(t, 6, total)
				calls = append(calls, done)
			},
		}

		buf := &bytes.Buffer{}
		require.NoError(t, pl.Run(context.Background(), p, buf), gen.String())
		assert.Equal(t, want, buf.Bytes(), gen.String())

		sort.Ints(calls)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, calls, gen.String())
	}
}

func TestPipelineExplicitIV(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := byteRange(7, 16)

	p, srv, want := encryptedPlaylist(t, V11, key, iv, 2)
	p.IV = byteRange(90, 16)

	pl := &Pipeline{Fetcher: srv, Generation: V11, Key: key, IV: iv, TempDir: t.TempDir()}

	buf := &bytes.Buffer{}
	require.NoError(t, pl.Run(context.Background(), p, buf))
	assert.Equal(t, want, buf.Bytes())
	assert.Equal(t, byteRange(90, 16), p.IV)
}

func TestPipelineStaleFragments(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := byteRange(7, 16)

	p, srv, want := encryptedPlaylist(t, V11, key, iv, 2)

	dir := filepath.Join(t.TempDir(), "fragments")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"0.bin", "7.bin"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("left over"), 0o644))
	}

	pl := &Pipeline{Fetcher: srv, Generation: V11, Key: key, TempDir: dir}

	buf := &bytes.Buffer{}
	require.NoError(t, pl.Run(context.Background(), p, buf))
	assert.Equal(t, want, buf.Bytes())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"0.bin", "1.bin"}, names)
}

func TestPipelineFailure(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := byteRange(7, 16)
	errBoom := errors.New("boom")

	p, srv, _ := encryptedPlaylist(t, V11, key, iv, 8)
	srv.fail[p.Fragments[2]] = errBoom
	for _, u := range p.Fragments[3:] {
		srv.delay[u] = time.Second
	}

	pl := &Pipeline{Fetcher: srv, Generation: V11, Key: key, MaxConcurrency: 8, TempDir: t.TempDir()}

	buf := &bytes.Buffer{}
	start := time.Now()
	err := pl.Run(context.Background(), p, buf)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "fragment 2")
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Zero(t, buf.Len())
}

func TestPipelineDecryptFailure(t *testing.T) {
	p, srv, _ := encryptedPlaylist(t, V11, []byte("0123456789abcdef"), byteRange(7, 16), 2)
	srv.bodies[p.Fragments[1]] = []byte("short")

	pl := &Pipeline{Fetcher: srv, Generation: V11, Key: []byte("0123456789abcdef"), TempDir: t.TempDir()}
	err := pl.Run(context.Background(), p, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestPipelineCanceled(t *testing.T) {
	p, srv, _ := encryptedPlaylist(t, V11, []byte("0123456789abcdef"), byteRange(7, 16), 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pl := &Pipeline{Fetcher: srv, Generation: V11, Key: []byte("0123456789abcdef"), TempDir: t.TempDir()}
	err := pl.Run(ctx, p, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineConfig(t *testing.T) {
	p := &Playlist{}

	err := (&Pipeline{TempDir: t.TempDir()}).Run(context.Background(), p, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrConfig)

	err = (&Pipeline{Fetcher: &fragmentServer{}}).Run(context.Background(), p, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrConfig)

	buf := &bytes.Buffer{}
	require.NoError(t, (&Pipeline{Fetcher: &fragmentServer{}, TempDir: t.TempDir()}).Run(context.Background(), p, buf))
	assert.Zero(t, buf.Len())
}

func TestFetcherFunc(t *testing.T) {
	f := FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		return []byte(url), nil
	})

	b, err := f.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
}

func TestMergeFragments(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"10.bin":    "ten",
		"2.bin":     "two",
		"1.bin":     "one",
		"notes.txt": "skip",
		"x.bin":     "skip",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "3.bin"), 0o755))

	buf := &bytes.Buffer{}
	require.NoError(t, MergeFragments(dir, buf))
	assert.Equal(t, "onetwoten", buf.String())

	err := MergeFragments(filepath.Join(dir, "missing"), buf)
	assert.Error(t, err)
}
