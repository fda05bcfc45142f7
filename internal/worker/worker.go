/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * QAnotherRTSP
 * Copyright (C) 2025 e1z0 <e1z0@icloud.com>
 *
 * This file is part of QAnotherRTSP.
 *
 * QAnotherRTSP is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * QAnotherRTSP is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with QAnotherRTSP.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package worker implements the decode worker: a background producer
// that pulls packets, drives the two codec decoders, converts their
// output, and hands completed frames to the consumer via the worker-side
// frame queues. Its states are Idle/Draining/Feeding/Flushing/Stopping;
// a single mutex guards every ring-buffer mutation and shared flag,
// collapsing the original's separate state-mutex/condvar-mutex pair.
package worker

import (
	"fmt"
	"sync"

	astiav "github.com/asticode/go-astiav"

	"github.com/sr2pkg/moviedecode/internal/framepool"
	"github.com/sr2pkg/moviedecode/internal/posted"
	"github.com/sr2pkg/moviedecode/internal/ringbuf"
	"github.com/sr2pkg/moviedecode/internal/timebase"
)

// VideoStream bundles the worker-side state for the video stream: the
// frame queue (completed frames awaiting pickup) and the free-slot pool.
// The matching consumer-side buffer is owned by the movie controller, not
// the worker, and is only ever passed in as an explicit parameter.
type VideoStream struct {
	Index    int
	TimeBase timebase.Rational

	FrameQueue *ringbuf.Buffer[framepool.VideoFrame] // worker -> consumer
	FramePool  *ringbuf.Buffer[framepool.VideoFrame] // free list
}

// AudioStream is the audio equivalent, plus the lazy-init bookkeeping
// needed because the codec doesn't advertise its per-frame sample count
// in advance.
type AudioStream struct {
	Index    int
	TimeBase timebase.Rational

	FrameQueue *ringbuf.Buffer[framepool.AudioFrame]
	FramePool  *ringbuf.Buffer[framepool.AudioFrame]

	Initialized bool
}

// Worker is the decode worker's full shared state. Every field here is
// either immutable after New or guarded by Mu — satisfying invariant 1
// ("every frame/packet object lives in exactly one of {pool, queue,
// consumer buffer} at any instant").
type Worker struct {
	Mu   sync.Mutex
	cond *sync.Cond

	Video VideoStream
	Audio AudioStream

	HasAudioStream bool // the container has an audio stream at all
	UsePosted      bool

	PacketQueue *ringbuf.Buffer[*astiav.Packet]
	PacketPool  *ringbuf.Buffer[*astiav.Packet]

	videoCodec VideoCodec
	audioCodec AudioCodec

	width, height int
	staging       framepool.RGBAImage
	lut           []uint16

	sampleRate         int64
	streamBufferTimeMS int64

	nextFrameID int64
	stopping    bool
	flushing    bool

	// AbortFunc receives a fatal diagnostic; it must not return (panic,
	// os.Exit, longjmp-equivalent). The default panics.
	AbortFunc func(string)

	// OnAudioReady is invoked exactly once, under Mu, the first time an
	// audio frame is decoded and the pool is sized — the consumer
	// controller uses it to allocate the matching consumer-side buffer,
	// mirroring the "hack because we don't know the audio frame size in
	// advance" comment in the original.
	OnAudioReady func(capacity int)

	stopped chan struct{}
}

// New builds a worker for the given video/audio codecs and starts it
// paused (callers must call Start). width/height come from the video
// codec's reported geometry. numPackets sizes the packet queue/pool
// (config.Options.NumPackets, 32 by default, matching NUM_PACKETS in the
// original). streamBufferTimeMS sizes both frame pools
// (config.Options.StreamBufferTimeMS, 4000ms by default).
func New(videoCodec VideoCodec, audioCodec AudioCodec, videoIndex int, videoTB timebase.Rational, audioIndex int, audioTB timebase.Rational, usePosted bool, palette [256]posted.RGB, sampleRate int64, avgFPSNum, avgFPSDen int64, numPackets int, streamBufferTimeMS int64) *Worker {
	w := &Worker{
		videoCodec:         videoCodec,
		audioCodec:         audioCodec,
		HasAudioStream:     audioCodec != nil,
		UsePosted:          usePosted,
		sampleRate:         sampleRate,
		streamBufferTimeMS: streamBufferTimeMS,
		width:              videoCodec.Width(),
		height:             videoCodec.Height(),
		lut:                posted.BuildLUT(palette),
		stopped:            make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.Mu)

	videoCapacity := framepool.VideoPoolCapacity(avgFPSNum, avgFPSDen, streamBufferTimeMS)
	w.Video = VideoStream{
		Index:      videoIndex,
		TimeBase:   videoTB,
		FrameQueue: ringbuf.New[framepool.VideoFrame](videoCapacity),
		FramePool:  framepool.NewVideoPool(videoCapacity, w.width, w.height, usePosted),
	}
	if usePosted {
		w.staging = framepool.NewRGBAImage(w.width, w.height)
	}

	if audioCodec != nil {
		w.Audio = AudioStream{Index: audioIndex, TimeBase: audioTB}
	} else {
		w.Audio = AudioStream{Index: -1}
	}

	w.PacketQueue = ringbuf.New[*astiav.Packet](numPackets)
	w.PacketPool = ringbuf.New[*astiav.Packet](numPackets)
	for i := 0; i < numPackets; i++ {
		slot := w.PacketPool.Enqueue()
		*slot = astiav.AllocPacket()
	}

	return w
}

func (w *Worker) abort(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.AbortFunc != nil {
		w.AbortFunc(msg)
		return
	}
	panic(msg)
}

// Start spawns the worker's decode loop on its own goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Stop signals the worker to exit and blocks until it has, matching
// StopDecoderThread's spin-on-stopping-flag shutdown.
func (w *Worker) Stop() {
	w.Mu.Lock()
	w.stopping = true
	w.cond.Broadcast()
	w.Mu.Unlock()

	<-w.stopped
}

// RequestFlush marks the worker for a flush (pending seek): pending
// packets are dropped and the worker will drain its decoders before
// resuming.
func (w *Worker) RequestFlush() {
	w.Mu.Lock()
	w.flushing = true
	ringbuf.MoveAll(w.PacketPool, w.PacketQueue)
	w.cond.Broadcast()
	w.Mu.Unlock()
}

// Flushing reports whether a flush is currently in progress.
func (w *Worker) Flushing() bool {
	w.Mu.Lock()
	defer w.Mu.Unlock()
	return w.flushing
}

// EnqueuePacket returns the packet pool's head slot for the caller to
// read a demuxed packet into. Call CommitPacket afterwards to move it
// into the packet queue, or leave it in place (after Unref) if the
// packet belongs to a stream nobody cares about.
func (w *Worker) EnqueuePacket() (*astiav.Packet, bool) {
	w.Mu.Lock()
	defer w.Mu.Unlock()
	if w.PacketPool.Size() == 0 {
		return nil, false
	}
	return *w.PacketPool.Peek(0), true
}

// CommitPacket moves the head of the packet pool (already populated by
// the demuxer via the pointer EnqueuePacket returned) into the packet
// queue and wakes the worker.
func (w *Worker) CommitPacket() {
	w.Mu.Lock()
	ringbuf.MoveOne(w.PacketQueue, w.PacketPool)
	w.cond.Broadcast()
	w.Mu.Unlock()
}

// DiscardPooledPacket leaves a packet (already unreffed by the caller) at
// the head of the pool in place — used when ReadPacket returns a packet
// for a stream nobody cares about.
func (w *Worker) DiscardPooledPacket() {}

// DrainVideoQueue moves every completed video frame from the worker
// queue into dst (the consumer buffer), waking the worker afterwards.
// Called from Update.
func (w *Worker) DrainVideoQueue(dst *ringbuf.Buffer[framepool.VideoFrame]) {
	w.Mu.Lock()
	moved := w.Video.FrameQueue.Size() > 0
	ringbuf.MoveAll(dst, w.Video.FrameQueue)
	if moved {
		w.cond.Broadcast()
	}
	w.Mu.Unlock()
}

// DrainAudioQueue moves every completed audio frame from the worker
// queue into dst, invoking assignSample(dst) after each frame is appended
// (the new frame is dst's tail) so the caller can assign first_sample_position (the
// consumer, not the worker, owns that computation).
func (w *Worker) DrainAudioQueue(dst *ringbuf.Buffer[framepool.AudioFrame], assignSample func(*ringbuf.Buffer[framepool.AudioFrame])) {
	w.Mu.Lock()
	defer w.Mu.Unlock()
	if w.Audio.FrameQueue == nil || w.Audio.FrameQueue.Size() == 0 {
		return
	}
	for w.Audio.FrameQueue.Size() > 0 {
		ringbuf.MoveOne(dst, w.Audio.FrameQueue)
		assignSample(dst)
	}
	w.cond.Broadcast()
}

// EvictOldestVideo returns the head video frame to the worker pool and
// wakes it, matching ClearOldestFrame.
func (w *Worker) EvictOldestVideo(src *ringbuf.Buffer[framepool.VideoFrame]) {
	w.Mu.Lock()
	ringbuf.MoveOne(w.Video.FramePool, src)
	w.cond.Broadcast()
	w.Mu.Unlock()
}

// EvictOldestAudio returns the head audio frame to the worker pool and
// wakes it.
func (w *Worker) EvictOldestAudio(src *ringbuf.Buffer[framepool.AudioFrame]) {
	w.Mu.Lock()
	ringbuf.MoveOne(w.Audio.FramePool, src)
	w.cond.Broadcast()
	w.Mu.Unlock()
}

// ClearAll drains both consumer buffers entirely back into their worker
// pools, matching ClearAllFrames (used before a seek and before
// SetImageFormat's teardown).
func (w *Worker) ClearAll(videoBuf *ringbuf.Buffer[framepool.VideoFrame], audioBuf *ringbuf.Buffer[framepool.AudioFrame]) {
	w.Mu.Lock()
	ringbuf.MoveAll(w.Video.FramePool, videoBuf)
	if w.Audio.FramePool != nil && audioBuf != nil {
		ringbuf.MoveAll(w.Audio.FramePool, audioBuf)
	}
	w.cond.Broadcast()
	w.Mu.Unlock()
}

// queuesFullLocked reports whether either frame pool has no free slot to
// decode into (the condition under which the worker sleeps): the video
// pool is empty, or the audio pool exists and is empty. Mirrors
// DecoderThread's queuesfull check: before the audio pool exists, only
// the video pool is considered. Callers must
// already hold Mu.
func (w *Worker) queuesFullLocked() bool {
	if w.Video.FramePool.Size() == 0 {
		return true
	}
	return w.Audio.Initialized && w.Audio.FramePool.Size() == 0
}

// run is the worker goroutine's main loop, matching DecoderThread. A
// single mutex guards every shared flag and ring buffer and doubles as
// the condvar mutex, collapsing the original's separate state/condvar
// mutex pair: the wait condition is re-checked under the same lock that
// is passed to Wait, so a wakeup signalled between the check and the
// wait can never be missed.
func (w *Worker) run() {
	for {
		w.Mu.Lock()
		for !w.stopping && !w.flushing && w.queuesFullLocked() {
			w.cond.Wait()
		}
		stopping := w.stopping
		flushing := w.flushing
		w.Mu.Unlock()

		if stopping {
			break
		}
		if flushing {
			w.flushDecoding()
			continue
		}

		if w.tryReceiveVideo() {
			continue
		}
		if w.HasAudioStream && w.tryReceiveAudio() {
			continue
		}
		if !w.trySendPacket() {
			w.Mu.Lock()
			for !w.stopping && !w.flushing && w.PacketQueue.Size() == 0 {
				w.cond.Wait()
			}
			w.Mu.Unlock()
		}
	}

	w.Mu.Lock()
	w.stopping = false
	w.Mu.Unlock()
	close(w.stopped)
}

func (w *Worker) tryReceiveVideo() bool {
	frame, ok, err := w.videoCodec.ReceiveFrame()
	if err != nil {
		w.abort("%s", err)
	}
	if !ok {
		return false
	}
	w.parseVideoFrame(frame)
	return true
}

func (w *Worker) parseVideoFrame(frame RawFrame) {
	w.Mu.Lock()
	slot := w.Video.FramePool.Peek(0)
	w.Mu.Unlock()

	slot.ID = w.nextFrameID
	w.nextFrameID++
	slot.PTS = frame.PTS
	slot.Duration = frame.Duration

	if w.UsePosted {
		if err := w.videoCodec.ScaleToRGBA(w.staging.Data); err != nil {
			w.abort("%s", err)
		}
		posted.ConvertRGBAToPatch(w.staging.Data, w.width, w.height, w.lut, slot.Posted)
	} else {
		if err := w.videoCodec.ScaleToRGBA(slot.RGBA.Data); err != nil {
			w.abort("%s", err)
		}
	}

	w.Mu.Lock()
	ringbuf.MoveOne(w.Video.FrameQueue, w.Video.FramePool)
	w.Mu.Unlock()
}

func (w *Worker) tryReceiveAudio() bool {
	frame, nbSamples, ok, err := w.audioCodec.ReceiveFrame()
	if err != nil {
		w.abort("%s", err)
	}
	if !ok {
		return false
	}
	w.parseAudioFrame(frame, nbSamples)
	return true
}

func (w *Worker) parseAudioFrame(frame RawFrame, nbSamples int) {
	if !w.Audio.Initialized {
		w.initAudioPools(nbSamples)
	}

	w.Mu.Lock()
	slot := w.Audio.FramePool.Peek(0)
	w.Mu.Unlock()

	maxSamples := int(framepool.SamplesPerFrame(int64(nbSamples), w.audioCodec.InputSampleRate(), w.sampleRate))
	n, err := w.audioCodec.ResampleToS16(maxSamples, slot.Planes)
	if err != nil {
		w.abort("%s", err)
	}
	slot.PTS = frame.PTS
	slot.NumSamples = n

	w.Mu.Lock()
	ringbuf.MoveOne(w.Audio.FrameQueue, w.Audio.FramePool)
	w.Mu.Unlock()
}

// initAudioPools sizes and allocates the audio buffers on first use, per
// the codec doesn't advertise its per-frame sample count in
// advance, so the pool can only be sized once the first frame lands.
func (w *Worker) initAudioPools(nbSamples int) {
	samplesPerFrame := int(framepool.SamplesPerFrame(int64(nbSamples), w.audioCodec.InputSampleRate(), w.sampleRate))
	capacity := framepool.AudioPoolCapacity(w.sampleRate, int64(samplesPerFrame), w.streamBufferTimeMS)
	numPlanes := w.audioCodec.NumPlanes()
	channels := w.audioCodec.Channels()

	w.Mu.Lock()
	w.Audio.FrameQueue = ringbuf.New[framepool.AudioFrame](capacity)
	w.Audio.FramePool = framepool.NewAudioPool(capacity, numPlanes, samplesPerFrame, channels)
	w.Audio.Initialized = true
	if w.OnAudioReady != nil {
		w.OnAudioReady(capacity)
	}
	w.Mu.Unlock()
}

func (w *Worker) trySendPacket() bool {
	w.Mu.Lock()
	if w.PacketQueue.Size() == 0 {
		w.Mu.Unlock()
		return false
	}
	slot := ringbuf.MoveOne(w.PacketPool, w.PacketQueue)
	pkt := *slot
	w.Mu.Unlock()

	var err error
	switch pkt.StreamIndex() {
	case w.Video.Index:
		err = w.videoCodec.SendPacket(pkt)
	case w.Audio.Index:
		err = w.audioCodec.SendPacket(pkt)
	default:
		// The consumer's readPackets already leaves unrecognised stream
		// indices in the pool before they ever reach the queue; reaching
		// this branch means that invariant broke.
		w.abort("FFmpeg: unexpected packet")
		return true
	}
	if err != nil {
		w.abort("%s", err)
	}
	pkt.Unref()
	return true
}

// flushDecoding runs the flush sequence: send a null packet to each
// decoder, drain receive_frame until EOF, flush decoder-internal state,
// then drain the worker-side frame queue back into its pool. The
// consumer-side buffers are the movie controller's responsibility (it
// calls ClearAll around the seek that triggered this flush).
func (w *Worker) flushDecoding() {
	if err := w.videoCodec.SendPacket(nil); err != nil {
		w.abort("%s", err)
	}
	for w.videoFlushReceive() {
	}
	w.videoCodec.FlushBuffers()
	w.Mu.Lock()
	ringbuf.MoveAll(w.Video.FramePool, w.Video.FrameQueue)
	w.Mu.Unlock()

	if w.HasAudioStream && w.Audio.Initialized {
		if err := w.audioCodec.SendPacket(nil); err != nil {
			w.abort("%s", err)
		}
		for w.audioFlushReceive() {
		}
		w.audioCodec.FlushBuffers()
		w.Mu.Lock()
		ringbuf.MoveAll(w.Audio.FramePool, w.Audio.FrameQueue)
		w.Mu.Unlock()
	}

	w.Mu.Lock()
	w.flushing = false
	w.cond.Broadcast()
	w.Mu.Unlock()
}

func (w *Worker) videoFlushReceive() bool {
	_, ok, err := w.videoCodec.ReceiveFrame()
	if err != nil {
		w.abort("%s", err)
	}
	return ok
}

func (w *Worker) audioFlushReceive() bool {
	_, _, ok, err := w.audioCodec.ReceiveFrame()
	if err != nil {
		w.abort("%s", err)
	}
	return ok
}

// Close releases the codec contexts and packet pool.
func (w *Worker) Close() {
	w.videoCodec.Close()
	if w.audioCodec != nil {
		w.audioCodec.Close()
	}
	ringbuf.MoveAll(w.PacketPool, w.PacketQueue)
	for w.PacketPool.Size() > 0 {
		slot := w.PacketPool.Dequeue()
		(*slot).Free()
	}
}

// Width/Height expose the decoder's reported video geometry.
func (w *Worker) Width() int  { return w.width }
func (w *Worker) Height() int { return w.height }

// AudioNumPlanes and AudioChannels expose the resampled audio output
// layout, for the consumer controller's sample-copy arithmetic. Both
// return 0 when the movie has no audio stream.
func (w *Worker) AudioNumPlanes() int {
	if w.audioCodec == nil {
		return 0
	}
	return w.audioCodec.NumPlanes()
}

func (w *Worker) AudioChannels() int {
	if w.audioCodec == nil {
		return 0
	}
	return w.audioCodec.Channels()
}
