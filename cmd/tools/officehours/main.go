package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/mathta/backend/internal/config"
	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/internal/service/pipeline"
	"github.com/zhouzirui/mathta/backend/internal/service/session"
	"github.com/zhouzirui/mathta/backend/internal/service/signaling"
	"github.com/zhouzirui/mathta/backend/internal/webrtcpeer"
	"github.com/zhouzirui/mathta/backend/internal/whiteboard"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	relayURL := flag.String("relay", "http://localhost:8080/functions/v1/session", "信令中继地址")
	apiKey := flag.String("key", "", "中继 apikey 头（可选）")
	mode := flag.String("mode", string(session.InputText), "输入方式: audio 或 text")
	micPath := flag.String("mic", "", "作为麦克风播放的 Ogg/Opus 文件，留空则发送静音")
	outPath := flag.String("out", "", "将助教语音录制到 Ogg 文件")
	boardPath := flag.String("board", "", "白板背景图片（PNG/JPEG）")
	vad := flag.Bool("vad", false, "使用服务端语音活动检测")
	tutorID := flag.String("tutor", tutor.DefaultID, "助教 ID")

	flag.Parse()

	inputMode := session.InputMode(*mode)
	if inputMode != session.InputAudio && inputMode != session.InputText {
		flag.Usage()
		log.Fatal("请通过 -mode=audio 或 -mode=text 指定输入方式")
	}

	t, ok := tutor.Resolve(tutor.NewMemoryStore(tutor.Seed()), *tutorID)
	if !ok {
		log.Fatalf("未找到助教: %s", *tutorID)
	}

	board := whiteboard.New()
	if *boardPath != "" {
		if err := loadBoard(board, *boardPath); err != nil {
			log.Fatalf("白板图片加载失败: %v", err)
		}
	}

	api, err := webrtcpeer.NewAPI(cfg.WebRTC)
	if err != nil {
		log.Fatalf("WebRTC 初始化失败: %v", err)
	}

	var output webrtcpeer.AudioOutput = webrtcpeer.DiscardOutput{}
	if *outPath != "" {
		recorder, err := webrtcpeer.NewOggRecorder(*outPath)
		if err != nil {
			log.Fatalf("录音文件创建失败: %v", err)
		}
		defer recorder.Close()
		output = recorder
	}

	opts := session.OptionsFromConfig(cfg.Realtime)
	opts.InputMode = inputMode
	opts.Voice = t.Voice
	opts.Instructions = t.Instructions()
	if *vad {
		opts.TurnDetection = config.TurnDetectionServerVAD
	}

	printer := &viewPrinter{}
	sess := session.New(opts, session.Deps{
		Media: webrtcpeer.Media{Path: *micPath},
		NewPeer: webrtcpeer.NewFactory(api, webrtcpeer.Options{
			ICEServers:    webrtcpeer.ICEServers(cfg.WebRTC),
			GatherTimeout: cfg.WebRTC.GatherTimeout,
			Output:        output,
		}),
		Negotiator: signaling.NewClient(*relayURL, *apiKey, nil),
		Board:      board,
		Sink:       pipeline.LogSink{},
		Observer:   printer.print,
	})
	defer sess.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%s office hours with %s. Commands: /talk /mute /mode audio|text /stop\n", tutor.DefaultSite().Name, t.Name)
	if err := sess.Start(ctx); err != nil {
		log.Fatalf("会话启动失败: %v", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !runCommand(sess, line) {
				return
			}
		}
	}
}

// runCommand 执行一行输入；返回 false 表示结束会话。
func runCommand(sess *session.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "/talk":
		sess.ToggleTalking()
	case "/mute":
		sess.ToggleMute()
	case "/mode":
		if len(fields) < 2 {
			fmt.Println("usage: /mode audio|text")
			return true
		}
		sess.SetInputMode(session.InputMode(fields[1]))
	case "/stop":
		sess.Stop()
		return false
	default:
		sess.SendText(line)
	}
	return true
}

func loadBoard(board *whiteboard.Board, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	board.Load(img)
	return nil
}

// viewPrinter 只打印变化的部分
type viewPrinter struct {
	mu        sync.Mutex
	status    string
	subtitles string
	logCount  int
	lastLine  string
}

func (p *viewPrinter) print(v session.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.Status != p.status {
		fmt.Printf("[%s]\n", v.Status)
		p.status = v.Status
	}
	if v.Subtitles != "" && v.Subtitles != p.subtitles {
		fmt.Printf("  … %s\n", v.Subtitles)
	}
	p.subtitles = v.Subtitles

	for _, line := range p.freshLines(v.Log) {
		fmt.Println(line)
	}
	p.logCount = len(v.Log)
	if len(v.Log) > 0 {
		p.lastLine = v.Log[len(v.Log)-1]
	}
}

// freshLines 日志达到上限后旧行会被挤出，改用上次打印的最后一行定位。
func (p *viewPrinter) freshLines(lines []string) []string {
	if len(lines) > p.logCount {
		return lines[p.logCount:]
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] == p.lastLine {
			return lines[i+1:]
		}
	}
	return lines
}
