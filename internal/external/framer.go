package external

import "context"

// frameWriter re-chunks raw PCM bytes into fixed FrameSize frames,
// zero-padding the final frame. Real backends produce PCM in whatever
// sizes their transport hands back (websocket messages, subprocess
// responses); this normalizes that into the wire contract.
type frameWriter struct {
	ctx  context.Context
	out  chan<- []byte
	tail []byte
}

func newFrameWriter(out chan<- []byte) *frameWriter {
	return &frameWriter{ctx: context.Background(), out: out}
}

// newFrameWriterCtx is newFrameWriter with cancellation: send blocks
// until either the frame is delivered or ctx is done.
func newFrameWriterCtx(ctx context.Context, out chan<- []byte) *frameWriter {
	return &frameWriter{ctx: ctx, out: out}
}

// write buffers pcm and emits every full FrameSize frame it can.
func (f *frameWriter) write(pcm []byte) {
	f.tail = append(f.tail, pcm...)
	for len(f.tail) >= FrameSize {
		frame := make([]byte, FrameSize)
		copy(frame, f.tail[:FrameSize])
		f.tail = f.tail[FrameSize:]
		f.send(frame)
	}
}

// flush emits the final, zero-padded partial frame if any bytes remain.
func (f *frameWriter) flush() {
	if len(f.tail) == 0 {
		return
	}
	frame := make([]byte, FrameSize)
	copy(frame, f.tail)
	f.tail = nil
	f.send(frame)
}

func (f *frameWriter) send(frame []byte) {
	select {
	case f.out <- frame:
	case <-f.ctx.Done():
	}
}
