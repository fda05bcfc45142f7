package worker

import (
	"sync"
	"testing"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/sr2pkg/moviedecode/internal/framepool"
	"github.com/sr2pkg/moviedecode/internal/posted"
	"github.com/sr2pkg/moviedecode/internal/ringbuf"
	"github.com/sr2pkg/moviedecode/internal/timebase"
)

// scriptedFrame is one entry in a fake codec's decode script.
type scriptedFrame struct {
	pts      int64
	duration int64
}

// fakeVideoCodec feeds a fixed, scripted sequence of frames back to the
// worker regardless of what's sent to it, letting the state machine be
// exercised without linking against real decoder libraries.
type fakeVideoCodec struct {
	mu          sync.Mutex
	width       int
	height      int
	script      []scriptedFrame
	next        int
	sendCount   int
	flushCount  int
	closeCalled bool
}

func (f *fakeVideoCodec) SendPacket(pkt *astiav.Packet) error {
	f.mu.Lock()
	f.sendCount++
	f.mu.Unlock()
	return nil
}

func (f *fakeVideoCodec) ReceiveFrame() (RawFrame, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.script) {
		return RawFrame{}, false, nil
	}
	s := f.script[f.next]
	f.next++
	return RawFrame{PTS: s.pts, Duration: s.duration}, true, nil
}

func (f *fakeVideoCodec) ScaleToRGBA(dst []byte) error {
	for i := range dst {
		dst[i] = byte(i)
	}
	return nil
}

func (f *fakeVideoCodec) FlushBuffers() {
	f.mu.Lock()
	f.flushCount++
	f.next = len(f.script) // a flush drains the decoder's internal backlog
	f.mu.Unlock()
}

func (f *fakeVideoCodec) Width() int  { return f.width }
func (f *fakeVideoCodec) Height() int { return f.height }
func (f *fakeVideoCodec) Close()      { f.closeCalled = true }

func newFakeVideoCodec(n int) *fakeVideoCodec {
	script := make([]scriptedFrame, n)
	for i := range script {
		script[i] = scriptedFrame{pts: int64(i * 33), duration: 33}
	}
	return &fakeVideoCodec{width: 4, height: 2, script: script}
}

// fakeAudioCodec mirrors fakeVideoCodec for the audio side.
type fakeAudioCodec struct {
	mu         sync.Mutex
	script     []scriptedFrame
	next       int
	nbSamples  int
	numPlanes  int
	channels   int
	inRate     int64
	sendCount  int
	flushCount int
}

func (f *fakeAudioCodec) SendPacket(pkt *astiav.Packet) error {
	f.mu.Lock()
	f.sendCount++
	f.mu.Unlock()
	return nil
}

func (f *fakeAudioCodec) ReceiveFrame() (RawFrame, int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.script) {
		return RawFrame{}, 0, false, nil
	}
	s := f.script[f.next]
	f.next++
	return RawFrame{PTS: s.pts, Duration: s.duration}, f.nbSamples, true, nil
}

func (f *fakeAudioCodec) ResampleToS16(maxSamples int, planes [][]byte) (int, error) {
	n := f.nbSamples
	if n > maxSamples {
		n = maxSamples
	}
	return n, nil
}

func (f *fakeAudioCodec) InputSampleRate() int64 { return f.inRate }
func (f *fakeAudioCodec) NumPlanes() int         { return f.numPlanes }
func (f *fakeAudioCodec) Channels() int          { return f.channels }
func (f *fakeAudioCodec) FlushBuffers() {
	f.mu.Lock()
	f.flushCount++
	f.next = len(f.script)
	f.mu.Unlock()
}
func (f *fakeAudioCodec) Close() {}

func newFakeAudioCodec(n int) *fakeAudioCodec {
	script := make([]scriptedFrame, n)
	for i := range script {
		script[i] = scriptedFrame{pts: int64(i * 1024), duration: 1024}
	}
	return &fakeAudioCodec{script: script, nbSamples: 1024, numPlanes: 1, channels: 2, inRate: 44100}
}

// testNumPackets and testStreamBufferTimeMS mirror config.DefaultOptions'
// NumPackets/StreamBufferTimeMS; worker tests don't import the config
// package just to get these two constants.
const (
	testNumPackets         = 32
	testStreamBufferTimeMS = 4000
)

func newTestWorker(t *testing.T, video *fakeVideoCodec, audio *fakeAudioCodec) *Worker {
	t.Helper()
	var audioCodec AudioCodec
	if audio != nil {
		audioCodec = audio
	}
	var palette [256]posted.RGB
	w := New(video, audioCodec, 0, timebase.Rational{Num: 1, Den: 30000}, 1, timebase.Rational{Num: 1, Den: 44100}, false, palette, 44100, 25, 1, testNumPackets, testStreamBufferTimeMS)
	w.AbortFunc = func(msg string) { t.Errorf("worker aborted: %s", msg) }
	return w
}

// feedPackets moves up to count dummy packets from the worker's packet
// pool into its packet queue by repeatedly enqueuing and committing them,
// stopping early if the pool runs dry, mimicking readPackets in the
// top-level Update loop.
func feedPackets(t *testing.T, w *Worker, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		pkt, ok := w.EnqueuePacket()
		if !ok {
			return
		}
		pkt.Unref()
		// Alternate between the video and audio stream indices so both
		// codecs see packets, mirroring a real interleaved container.
		if w.HasAudioStream && i%2 == 1 {
			pkt.SetStreamIndex(w.Audio.Index)
		} else {
			pkt.SetStreamIndex(w.Video.Index)
		}
		w.CommitPacket()
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestWorkerDecodesVideoFramesInOrder(t *testing.T) {
	video := newFakeVideoCodec(10)
	w := newTestWorker(t, video, nil)
	w.Start()
	defer func() {
		w.Stop()
		w.Close()
	}()

	dst := ringbuf.New[framepool.VideoFrame](20)
	feedPackets(t, w, testNumPackets)

	ok := waitFor(t, time.Second, func() bool {
		w.DrainVideoQueue(dst)
		return dst.Size() >= 10
	})
	if !ok {
		t.Fatalf("only drained %d of 10 frames", dst.Size())
	}

	var lastPTS int64 = -1
	var lastID int64 = -1
	for i := 0; i < dst.Size(); i++ {
		f := dst.Peek(i)
		if f.PTS <= lastPTS {
			t.Fatalf("frame %d PTS %d not strictly increasing after %d", i, f.PTS, lastPTS)
		}
		if f.ID <= lastID {
			t.Fatalf("frame %d ID %d not strictly increasing after %d", i, f.ID, lastID)
		}
		lastPTS, lastID = f.PTS, f.ID
	}
}

func TestWorkerPoolQueueBufferInvariant(t *testing.T) {
	video := newFakeVideoCodec(50)
	w := newTestWorker(t, video, nil)
	w.Start()
	defer func() {
		w.Stop()
		w.Close()
	}()

	capacity := w.Video.FramePool.Capacity()
	dst := ringbuf.New[framepool.VideoFrame](capacity)

	for iter := 0; iter < 5; iter++ {
		feedPackets(t, w, testNumPackets)
		time.Sleep(5 * time.Millisecond)
		w.DrainVideoQueue(dst)

		w.Mu.Lock()
		total := w.Video.FramePool.Size() + w.Video.FrameQueue.Size() + dst.Size()
		w.Mu.Unlock()
		if total != capacity {
			t.Fatalf("iteration %d: pool+queue+buffer = %d, want capacity %d", iter, total, capacity)
		}
	}
}

func TestWorkerLazyAudioPoolInit(t *testing.T) {
	video := newFakeVideoCodec(5)
	audio := newFakeAudioCodec(5)
	w := newTestWorker(t, video, audio)

	w.Mu.Lock()
	initializedBeforeStart := w.Audio.Initialized
	w.Mu.Unlock()
	if initializedBeforeStart {
		t.Fatal("audio pool initialized before any audio frame decoded")
	}

	ready := make(chan int, 1)
	w.OnAudioReady = func(capacity int) { ready <- capacity }
	w.Start()
	defer func() {
		w.Stop()
		w.Close()
	}()

	feedPackets(t, w, testNumPackets)

	select {
	case capacity := <-ready:
		if capacity < 1 {
			t.Fatalf("OnAudioReady capacity = %d, want >= 1", capacity)
		}
	case <-time.After(time.Second):
		t.Fatal("OnAudioReady was never called")
	}
}

func TestWorkerGaplessAudioWithAssignedPositions(t *testing.T) {
	video := newFakeVideoCodec(3)
	audio := newFakeAudioCodec(10)
	w := newTestWorker(t, video, audio)
	w.Start()
	defer func() {
		w.Stop()
		w.Close()
	}()

	feedPackets(t, w, testNumPackets)

	var dst *ringbuf.Buffer[framepool.AudioFrame]
	ok := waitFor(t, time.Second, func() bool {
		w.Mu.Lock()
		initialized := w.Audio.Initialized
		w.Mu.Unlock()
		if !initialized {
			return false
		}
		if dst == nil {
			dst = ringbuf.New[framepool.AudioFrame](20)
		}
		assign := func(buf *ringbuf.Buffer[framepool.AudioFrame]) {
			n := buf.Size()
			slot := buf.Peek(n - 1)
			if n > 1 {
				prev := buf.Peek(n - 2)
				slot.FirstSamplePosition = prev.FirstSamplePosition + int64(prev.NumSamples)
			} else {
				slot.FirstSamplePosition = timebase.PTSToSamples(timebase.Rational{Num: 1, Den: 44100}, slot.PTS, 44100)
			}
		}
		w.DrainAudioQueue(dst, assign)
		return dst.Size() >= 10
	})
	if !ok {
		t.Fatalf("only drained %d of 10 audio frames", dst.Size())
	}

	for i := 1; i < dst.Size(); i++ {
		prev := dst.Peek(i - 1)
		cur := dst.Peek(i)
		if cur.FirstSamplePosition != prev.EndSample() {
			t.Fatalf("gap between audio frame %d (end %d) and %d (start %d)",
				i-1, prev.EndSample(), i, cur.FirstSamplePosition)
		}
	}
}

func TestWorkerFlushDrainsQueuesBackToPools(t *testing.T) {
	video := newFakeVideoCodec(100)
	w := newTestWorker(t, video, nil)
	w.Start()
	defer func() {
		w.Stop()
		w.Close()
	}()

	feedPackets(t, w, testNumPackets)
	time.Sleep(10 * time.Millisecond)

	w.RequestFlush()

	ok := waitFor(t, time.Second, func() bool { return !w.Flushing() })
	if !ok {
		t.Fatal("flush never completed")
	}

	w.Mu.Lock()
	queueEmpty := w.Video.FrameQueue.Size() == 0
	poolFull := w.Video.FramePool.Size() == w.Video.FramePool.Capacity()
	w.Mu.Unlock()
	if !queueEmpty {
		t.Fatal("frame queue not drained after flush")
	}
	if !poolFull {
		t.Fatal("frame pool not fully restored after flush")
	}
}

func TestWorkerStopIsIdempotentAndUnblocks(t *testing.T) {
	video := newFakeVideoCodec(2)
	w := newTestWorker(t, video, nil)
	w.Start()

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop() // a second Stop must return as well
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	w.Close()
}
