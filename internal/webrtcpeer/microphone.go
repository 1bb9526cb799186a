package webrtcpeer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/zhouzirui/mathta/backend/internal/service/session"
)

const (
	frameDuration   = 20 * time.Millisecond
	opusClockRate   = 48000
	opusChannels    = 2
	microphoneTrack = "mathta-mic"
)

// opusSilence 一帧 20ms 的 Opus 静音
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SampleSource 按帧提供 Opus 数据；返回 io.EOF 后麦克风改发静音。
type SampleSource interface {
	Next() ([]byte, time.Duration, error)
}

// Microphone 以 pion 本地轨道实现 session.Microphone。
// 关闭发送时继续推送静音帧，保持 RTP 时间轴连续。
type Microphone struct {
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool

	mu     sync.Mutex
	source SampleSource

	done chan struct{}
	once sync.Once
}

// NewMicrophone 创建麦克风轨道并开始推送；source 为 nil 时只推送静音。
func NewMicrophone(source SampleSource) (*Microphone, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: opusChannels},
		"audio",
		microphoneTrack,
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	m := &Microphone{track: track, source: source, done: make(chan struct{})}
	m.enabled.Store(true)
	go m.run()
	return m, nil
}

// Track 返回本地音频轨道
func (m *Microphone) Track() *webrtc.TrackLocalStaticSample { return m.track }

func (m *Microphone) SetEnabled(enabled bool) { m.enabled.Store(enabled) }

func (m *Microphone) Enabled() bool { return m.enabled.Load() }

// Stop 停止推送并释放输入源，可重复调用。
func (m *Microphone) Stop() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		m.mu.Lock()
		if closer, ok := m.source.(io.Closer); ok {
			err = closer.Close()
		}
		m.source = nil
		m.mu.Unlock()
	})
	return err
}

func (m *Microphone) run() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		data, duration := m.nextFrame()
		if !m.enabled.Load() {
			data = opusSilence
		}
		if err := m.track.WriteSample(media.Sample{Data: data, Duration: duration}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Printf("[webrtc] write microphone sample: %v", err)
		}
	}
}

func (m *Microphone) nextFrame() ([]byte, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.source == nil {
		return opusSilence, frameDuration
	}
	data, duration, err := m.source.Next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Printf("[webrtc] microphone source failed: %v", err)
		}
		if closer, ok := m.source.(io.Closer); ok {
			_ = closer.Close()
		}
		m.source = nil
		return opusSilence, frameDuration
	}
	if duration <= 0 {
		duration = frameDuration
	}
	return data, duration
}

// OggSource 从 Ogg/Opus 流中逐页读取音频
type OggSource struct {
	reader      *oggreader.OggReader
	closer      io.Closer
	lastGranule uint64
}

// NewOggSource 解析 Ogg 头并返回音频源
func NewOggSource(r io.Reader) (*OggSource, error) {
	reader, _, err := oggreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("read ogg header: %w", err)
	}
	src := &OggSource{reader: reader}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src, nil
}

// Next 返回下一页数据及其时长
func (s *OggSource) Next() ([]byte, time.Duration, error) {
	page, header, err := s.reader.ParseNextPage()
	if err != nil {
		return nil, 0, err
	}

	var duration time.Duration
	if header.GranulePosition > s.lastGranule {
		samples := header.GranulePosition - s.lastGranule
		duration = time.Duration(float64(samples) / opusClockRate * float64(time.Second))
	}
	s.lastGranule = header.GranulePosition
	return page, duration, nil
}

func (s *OggSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Media 实现 session.MediaSource：Path 为空时提供静音麦克风，否则播放 Ogg/Opus 文件。
type Media struct {
	Path string
}

// Acquire 打开音频源。本地文件不支持回声消除等采集约束，只记录日志。
func (m Media) Acquire(ctx context.Context, constraints session.AudioConstraints) (session.Microphone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var source SampleSource
	if m.Path != "" {
		f, err := os.Open(m.Path)
		if err != nil {
			return nil, fmt.Errorf("open microphone file: %w", err)
		}
		ogg, err := NewOggSource(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		source = ogg
	}

	log.Printf("[webrtc] microphone acquired path=%q echoCancellation=%v noiseSuppression=%v autoGainControl=%v",
		m.Path, constraints.EchoCancellation, constraints.NoiseSuppression, constraints.AutoGainControl)
	return NewMicrophone(source)
}
