package webrtcpeer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/zhouzirui/mathta/backend/internal/service/session"
)

// ErrChannelNotOpen 控制通道尚未打开或已关闭
var ErrChannelNotOpen = errors.New("data channel not open")

const defaultGatherTimeout = 5 * time.Second

// Options 连接参数
type Options struct {
	ICEServers    []webrtc.ICEServer
	GatherTimeout time.Duration
	Output        AudioOutput
}

// Peer 实现 session.Peer：一条 PeerConnection 加一个 oai-events 数据通道。
type Peer struct {
	pc            *webrtc.PeerConnection
	dc            *webrtc.DataChannel
	gatherTimeout time.Duration
	closeOnce     sync.Once
	closeErr      error
}

// NewFactory 返回使用给定 API 创建连接的 session.PeerFactory
func NewFactory(api *webrtc.API, opts Options) session.PeerFactory {
	return func(mic session.Microphone, handlers session.PeerHandlers) (session.Peer, error) {
		return NewPeer(api, opts, mic, handlers)
	}
}

// NewPeer 创建连接：附加本地音频（或只收不发），创建控制通道，并把远端音频交给 Output。
func NewPeer(api *webrtc.API, opts Options, mic session.Microphone, handlers session.PeerHandlers) (*Peer, error) {
	if api == nil {
		api = webrtc.NewAPI()
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = defaultGatherTimeout
	}
	output := opts.Output
	if output == nil {
		output = DiscardOutput{}
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &Peer{pc: pc, gatherTimeout: opts.GatherTimeout}

	if local, ok := mic.(*Microphone); ok && local != nil {
		sender, err := pc.AddTrack(local.Track())
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add audio track: %w", err)
		}
		go drainRTCP(sender)
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("[webrtc] remote track kind=%s codec=%s", track.Kind(), track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			DiscardOutput{}.Play(track)
			return
		}
		output.Play(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[webrtc] connection state=%s", state)
	})

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	p.dc = dc

	if handlers.OnOpen != nil {
		dc.OnOpen(handlers.OnOpen)
	}
	if handlers.OnMessage != nil {
		onMessage := handlers.OnMessage
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			onMessage(msg.Data)
		})
	}
	if handlers.OnClose != nil {
		dc.OnClose(handlers.OnClose)
	}

	return p, nil
}

// CreateOffer 创建本地 offer 并等待 ICE 收集完成，返回完整 SDP。
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(p.gatherTimeout)
	defer timer.Stop()

	select {
	case <-gatherComplete:
	case <-timer.C:
		log.Printf("[webrtc] ICE gathering timed out after %s, sending partial candidates", p.gatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description unavailable")
	}
	return local.SDP, nil
}

// SetAnswer 应用远端 answer
func (p *Peer) SetAnswer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// Send 以文本帧发送一条控制事件
func (p *Peer) Send(data []byte) error {
	if p.dc == nil || p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return p.dc.SendText(string(data))
}

// Close 关闭数据通道与连接，可重复调用。
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		if p.dc != nil {
			_ = p.dc.Close()
		}
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
