package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"runtime"
	"sync"

	"github.com/bucketworks/kiosk/pkg/core/audio"
)

const micFrameSamples = 1024

// ffmpegMic captures microphone audio through an ffmpeg subprocess emitting
// raw float32 LE mono at the capture rate. It implements live.Microphone and
// is restartable: each Start spawns a fresh process and frame channel.
type ffmpegMic struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	frames chan []float32
}

func newFFmpegMic() (*ffmpegMic, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for voice capture (install ffmpeg and ensure it is in PATH)")
	}
	if _, err := micFFmpegArgs(runtime.GOOS); err != nil {
		return nil, err
	}
	return &ffmpegMic{}, nil
}

func micFFmpegArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", audio.CaptureSampleRateHz),
			"-f", "f32le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", audio.CaptureSampleRateHz),
			"-f", "f32le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("voice capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (m *ffmpegMic) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return errors.New("mic already capturing")
	}

	args, err := micFFmpegArgs(runtime.GOOS)
	if err != nil {
		return err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg mic capture: %w", err)
	}

	m.cmd = cmd
	m.stdout = stdout
	m.frames = make(chan []float32, 16)
	go m.readLoop(ctx, stdout, m.frames)
	return nil
}

func (m *ffmpegMic) readLoop(ctx context.Context, r io.Reader, frames chan<- []float32) {
	defer close(frames)
	buf := make([]byte, micFrameSamples*4)
	for {
		n, err := io.ReadFull(r, buf)
		if n >= 4 {
			frame := float32Frame(buf[:n-n%4])
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (m *ffmpegMic) Frames() <-chan []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func (m *ffmpegMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	m.cmd = nil
	m.stdout = nil
	return nil
}

func float32Frame(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// ffplaySink plays PCM16 mono at the playback rate through an ffplay
// subprocess. It implements audio.Sink; Reset restarts the process to flush
// anything buffered.
type ffplaySink struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func newFFplaySink() (*ffplaySink, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for voice playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	sink := &ffplaySink{}
	if err := sink.startLocked(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (p *ffplaySink) startLocked() error {
	p.cmd = exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", audio.PlaybackSampleRateHz),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	p.cmd.Stdout = io.Discard
	p.cmd.Stderr = io.Discard
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	p.stdin = stdin
	return nil
}

func (p *ffplaySink) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errors.New("ffplay stdin is not initialized")
	}
	_, err := p.stdin.Write(data)
	return err
}

func (p *ffplaySink) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.stdin = nil
	return p.startLocked()
}

func (p *ffplaySink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.stdin = nil
	return nil
}
