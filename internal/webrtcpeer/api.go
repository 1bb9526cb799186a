package webrtcpeer

import (
	"fmt"
	"os"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/zhouzirui/mathta/backend/internal/config"
)

// DataChannelLabel 与上游约定的控制通道名称
const DataChannelLabel = "oai-events"

// NewAPI 构造带默认编解码器与拦截器的 pion API。
//
// tweaks 可在创建前调整 SettingEngine（测试中用于注入虚拟网络）。
func NewAPI(cfg config.WebRTCConfig, tweaks ...func(*webrtc.SettingEngine)) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(cfg.LogLevel)
	for _, tweak := range tweaks {
		tweak(&se)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// NewLoggerFactory 按名称（error|warn|info|debug|trace|disabled）设置 pion 日志级别
func NewLoggerFactory(level string) logging.LoggerFactory {
	factory := logging.NewDefaultLoggerFactory()
	factory.Writer = os.Stderr
	factory.DefaultLogLevel = parseLogLevel(level)
	return factory
}

func parseLogLevel(level string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled
	case "error":
		return logging.LogLevelError
	case "info":
		return logging.LogLevelInfo
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelWarn
	}
}

// ICEServers 将配置中的 URL 列表转换为 pion 的 ICE 服务器配置
func ICEServers(cfg config.WebRTCConfig) []webrtc.ICEServer {
	if len(cfg.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: append([]string(nil), cfg.ICEServers...)}}
}
