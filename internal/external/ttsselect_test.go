package external

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTTS struct {
	frames [][]byte
	err    error
}

func (f fakeTTS) Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, len(f.frames)+1)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		defer close(errs)
		for _, fr := range f.frames {
			frames <- fr
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return frames, errs
}

func collectFrames(ch <-chan []byte) [][]byte {
	var out [][]byte
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func TestTTSBackends_FallsThroughWhenPrimaryProducesNoFrames(t *testing.T) {
	b := TTSBackends{
		Edge:     fakeTTS{err: errors.New("edge down")},
		CloudAlt: fakeTTS{frames: [][]byte{{1, 2, 3}}},
	}
	frames, errs := b.Synthesize(context.Background(), "edge", "hi")
	got := collectFrames(frames)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, [][]byte{{1, 2, 3}}, got)
}

func TestTTSBackends_NoFallbackOncePrimaryProducedFrames(t *testing.T) {
	b := TTSBackends{
		Edge:     fakeTTS{frames: [][]byte{{9}}, err: errors.New("edge died mid-stream")},
		CloudAlt: fakeTTS{frames: [][]byte{{1}}},
	}
	frames, errs := b.Synthesize(context.Background(), "edge", "hi")
	got := collectFrames(frames)
	require.Equal(t, [][]byte{{9}}, got)
	err := <-errs
	require.Error(t, err)
}

func TestTTSBackends_BothFailYieldsNoFramesAndError(t *testing.T) {
	b := TTSBackends{
		Edge:     fakeTTS{err: errors.New("edge down")},
		CloudAlt: fakeTTS{err: errors.New("cloud down too")},
	}
	frames, errs := b.Synthesize(context.Background(), "edge", "hi")
	got := collectFrames(frames)
	require.Empty(t, got)
	err := <-errs
	require.Error(t, err)
}

func TestSelect_PicksBackendByName(t *testing.T) {
	b := TTSBackends{Edge: fakeTTS{}, CloudAlt: fakeTTS{}}
	primary, fallback := b.Select("cloud-alt")
	require.Equal(t, b.CloudAlt, primary)
	require.Equal(t, b.Edge, fallback)
}
