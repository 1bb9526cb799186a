package webrtcpeer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// AudioOutput 消费上游返回的远端音频轨道
type AudioOutput interface {
	Play(track *webrtc.TrackRemote)
}

// DiscardOutput 读取并丢弃远端音频，保证 RTCP 与抖动缓冲正常运转。
type DiscardOutput struct{}

func (DiscardOutput) Play(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// OggRecorder 将远端 Opus 音频写入 Ogg 文件
type OggRecorder struct {
	mu     sync.Mutex
	writer *oggwriter.OggWriter
}

// NewOggRecorder 创建录音文件
func NewOggRecorder(path string) (*OggRecorder, error) {
	w, err := oggwriter.New(path, opusClockRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("create ogg recorder: %w", err)
	}
	return &OggRecorder{writer: w}, nil
}

func (r *OggRecorder) Play(track *webrtc.TrackRemote) {
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
		log.Printf("[webrtc] skip recording non-opus track codec=%s", track.Codec().MimeType)
		DiscardOutput{}.Play(track)
		return
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[webrtc] remote audio ended: %v", err)
			}
			return
		}
		r.mu.Lock()
		if r.writer != nil {
			if err := r.writer.WriteRTP(pkt); err != nil {
				log.Printf("[webrtc] write recording: %v", err)
			}
		}
		r.mu.Unlock()
	}
}

// Close 结束录音
func (r *OggRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}
