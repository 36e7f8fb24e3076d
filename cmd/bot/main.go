package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"townsync/client"
	"townsync/config"
	"townsync/logging"
	"townsync/protocol"
)

// bot：无界面的同步客户端，沿正方形路线行走并定时发言，用于联调与压测
func main() {
	fs := flag.NewFlagSet("bot", flag.ExitOnError)
	var (
		mapName string
		side    float64
		speed   float64
		chatGap time.Duration
	)
	fs.StringVar(&mapName, "map", "town", "map the bot walks on")
	fs.Float64Var(&side, "side", 128, "side length of the walking square")
	fs.Float64Var(&speed, "speed", 64, "walking speed per second")
	fs.DurationVar(&chatGap, "chat-gap", 10*time.Second, "interval between chat messages (0 disables)")
	cfg, err := config.LoadClient(fs, os.Args[1:])
	if err == nil {
		err = checkWalk(side, speed)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logging.New(logging.Options{File: cfg.Log.File, Level: cfg.Log.Level})
	if err != nil {
		panic(err)
	}
	defer logging.Sync(log)

	agent, err := client.NewAgent(cfg, log)
	if err != nil {
		log.Fatalf("create agent: %v", err)
	}
	agent.Enter()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 模拟渲染循环：60 帧/秒提交本地状态，每 2 秒读一次快照
	frame := time.NewTicker(time.Second / 60)
	defer frame.Stop()
	report := time.NewTicker(2 * time.Second)
	defer report.Stop()
	var chatC <-chan time.Time
	if chatGap > 0 {
		chat := time.NewTicker(chatGap)
		defer chat.Stop()
		chatC = chat.C
	}

	w := newWalker(side, speed)
	last := time.Now()
	said := 0
	for {
		select {
		case <-quit:
			log.Info("Shutting down...")
			agent.Exit()
			agent.Wait()
			return
		case now := <-frame.C:
			x, y, dir := w.step(now.Sub(last).Seconds())
			last = now
			agent.SubmitLocalState(x, y, mapName, dir, true)
		case <-chatC:
			said++
			if !agent.EnqueueChat(fmt.Sprintf("hello #%d from bot %d", said, agent.PlayerID())) {
				log.Warn("chat queue full, message dropped")
			}
		case <-report.C:
			others := agent.RemotePlayers()
			recent := agent.RecentChat(3)
			log.Infof("id=%d sees %d players, %d recent chat, stats=%+v", agent.PlayerID(), len(others), len(recent), agent.Stats())
			for _, m := range recent {
				log.Debugf("chat #%d <%d> %s", m.ID, m.From, m.Text)
			}
		}
	}
}

// checkWalk 校验行走参数
func checkWalk(side, speed float64) error {
	if side <= 0 {
		return fmt.Errorf("side must be > 0, got %v", side)
	}
	if speed < 0 {
		return fmt.Errorf("speed must be >= 0, got %v", speed)
	}
	return nil
}

// walker 沿正方形边界匀速行走
type walker struct {
	side, speed float64
	dist        float64 // 已走的周长距离
}

func newWalker(side, speed float64) *walker {
	return &walker{side: side, speed: speed}
}

func (w *walker) step(dt float64) (x, y float64, dir protocol.Direction) {
	if w.side <= 0 {
		return 0, 0, protocol.DefaultDirection
	}
	w.dist = math.Mod(w.dist+w.speed*dt, 4*w.side)
	d := w.dist
	switch {
	case d < w.side:
		return d, 0, protocol.DirRight
	case d < 2*w.side:
		return w.side, d - w.side, protocol.DirDown
	case d < 3*w.side:
		return w.side - (d - 2*w.side), w.side, protocol.DirLeft
	default:
		return 0, w.side - (d - 3*w.side), protocol.DirUp
	}
}
