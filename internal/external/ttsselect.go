package external

import "context"

// TTSBackends resolves a session's selected tts_backend to a concrete
// TTS, falling through to the other backend on failure. Grounded on
// the teacher's failoverTTSProvider (internal/voice/failover.go),
// simplified: this is a per-call fallback rather than a sticky one,
// since spec.md's recovery path (§4.7/§4.12) is "fall through to the
// other backend" for the current synthesis only, not a standing
// failover switch.
type TTSBackends struct {
	Edge     TTS
	CloudAlt TTS
}

// Select returns the backend for the given name and the other backend
// to fall through to if it fails.
func (b TTSBackends) Select(backend string) (primary TTS, fallback TTS) {
	if backend == "cloud-alt" {
		return b.CloudAlt, b.Edge
	}
	return b.Edge, b.CloudAlt
}

// Synthesize runs the selected backend and, if it errors before
// producing any frames, retries once against the other backend.
func (b TTSBackends) Synthesize(ctx context.Context, backend, text string) (<-chan []byte, <-chan error) {
	primary, fallback := b.Select(backend)
	frames, errs := primary.Synthesize(ctx, text)

	out := make(chan []byte, 8)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(outErr)

		produced := false
		for {
			select {
			case f, ok := <-frames:
				if !ok {
					frames = nil
					break
				}
				produced = true
				out <- f
				continue
			case err, ok := <-errs:
				if !ok {
					errs = nil
					break
				}
				// The error can be seen ahead of frames the primary had
				// already queued; forward those before deciding.
				if frames != nil {
					for f := range frames {
						produced = true
						out <- f
					}
					frames = nil
				}
				if produced || fallback == nil {
					outErr <- err
					return
				}
				fbFrames, fbErrs := fallback.Synthesize(ctx, text)
				for f := range fbFrames {
					out <- f
				}
				if fbErr, ok := <-fbErrs; ok && fbErr != nil {
					outErr <- fbErr
				}
				return
			}
			if frames == nil && errs == nil {
				return
			}
		}
	}()
	return out, outErr
}
