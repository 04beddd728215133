package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/schollz/progressbar/v3"
)

// Config 压测配置
type Config struct {
	Mode         string        // connect-only, messaging
	Target       string        // WebSocket URL
	Conns        int           // 总连接数
	Convs        int           // 会话数（messaging 模式下连接均匀散布到这些会话）
	Duration     time.Duration // 压测持续时间
	Ramp         time.Duration // 爬坡时间
	PingInterval time.Duration // 心跳间隔
	MsgRate      int           // 每连接每分钟消息数（messaging 模式）
	PayloadSize  int           // 消息体大小
	JWTSecret    string        // 为每个连接签发测试 token 的密钥
	Token        string        // 静态 token（覆盖 JWTSecret）
	BaseUserID   uint64        // 压测用户ID起点
	Output       string        // 输出格式：text, json, csv
	Verbose      bool          // 详细输出
}

// Stats 统计数据
type Stats struct {
	mu sync.RWMutex

	// 连接统计
	TotalAttempts int64 `json:"total_attempts"`
	SuccessConns  int64 `json:"success_conns"`
	FailedConns   int64 `json:"failed_conns"`
	CurrentConns  int64 `json:"current_conns"`
	Disconnects   int64 `json:"disconnects"`

	// 延迟统计（纳秒）
	ConnLatencies []int64 `json:"-"`
	MsgLatencies  []int64 `json:"-"`

	// 消息统计
	MessagesSent     int64 `json:"messages_sent"`
	AcksReceived     int64 `json:"acks_received"`
	EventsReceived   int64 `json:"events_received"`
	MessagesFailed   int64 `json:"messages_failed"`
	DuplicateAcks    int64 `json:"duplicate_acks"`
	MessagesReceived int64 `json:"messages_received"`

	// Ping/Pong 统计
	PingsSent     int64 `json:"pings_sent"`
	PongsReceived int64 `json:"pongs_received"`

	// 错误统计
	Errors map[string]int64 `json:"errors"`

	// 时间
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Result 压测结果
type Result struct {
	Config Config `json:"config"`

	// 连接指标
	TotalAttempts int64   `json:"total_attempts"`
	SuccessConns  int64   `json:"success_conns"`
	FailedConns   int64   `json:"failed_conns"`
	SuccessRate   float64 `json:"success_rate_percent"`
	Disconnects   int64   `json:"disconnects"`
	FinalConns    int64   `json:"final_conns"`

	// 连接延迟
	ConnLatency LatencyStats `json:"conn_latency_ms"`

	// 发送到 ACK 的往返延迟（messaging 模式）
	AckLatency LatencyStats `json:"ack_latency_ms,omitempty"`

	// 消息统计
	MessagesSent   int64 `json:"messages_sent"`
	AcksReceived   int64 `json:"acks_received"`
	EventsReceived int64 `json:"events_received"`
	DuplicateAcks  int64 `json:"duplicate_acks"`

	// 心跳统计
	PingsSent     int64   `json:"pings_sent"`
	PongsReceived int64   `json:"pongs_received"`
	PongRate      float64 `json:"pong_rate_percent"`

	// 错误
	Errors map[string]int64 `json:"errors"`

	// 时间
	Duration   time.Duration `json:"duration_seconds"`
	ActualTime float64       `json:"actual_time_seconds"`
}

// LatencyStats 延迟统计
type LatencyStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	StdDev float64 `json:"std_dev"`
}

// Conn WebSocket 连接包装
type Conn struct {
	id        int
	conn      *websocket.Conn
	userID    uint64
	convID    uint64
	connected bool
	mu        sync.Mutex

	// temp_id -> 发出时间，用于计算 ACK 往返延迟
	inflight sync.Map
}

func main() {
	cfg := parseFlags()

	fmt.Println("=== wsbench - 实时同步服务压测工具 ===")
	fmt.Printf("模式: %s\n", cfg.Mode)
	fmt.Printf("目标: %s\n", cfg.Target)
	fmt.Printf("连接数: %d\n", cfg.Conns)
	fmt.Printf("持续时间: %s\n", cfg.Duration)
	fmt.Printf("爬坡时间: %s\n", cfg.Ramp)
	fmt.Printf("心跳间隔: %s\n", cfg.PingInterval)
	if cfg.Mode == "messaging" {
		fmt.Printf("会话数: %d\n", cfg.Convs)
		fmt.Printf("消息速率: %d 条/连接/分钟\n", cfg.MsgRate)
	}
	fmt.Println()

	stats := &Stats{
		Errors:    make(map[string]int64),
		StartTime: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听中断信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n收到中断信号，正在关闭...")
		cancel()
	}()

	// 运行压测
	runBench(ctx, cfg, stats)

	stats.EndTime = time.Now()

	// 生成结果
	result := generateResult(cfg, stats)

	// 输出结果
	switch cfg.Output {
	case "json":
		outputJSON(result)
	case "csv":
		outputCSV(result)
	default:
		outputText(result)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Mode, "mode", "connect-only", "压测模式: connect-only, messaging")
	flag.StringVar(&cfg.Target, "target", "ws://localhost:8085/ws", "WebSocket URL")
	flag.IntVar(&cfg.Conns, "conns", 1000, "总连接数")
	flag.IntVar(&cfg.Convs, "convs", 100, "会话数（messaging 模式）")
	flag.DurationVar(&cfg.Duration, "duration", 5*time.Minute, "压测持续时间")
	flag.DurationVar(&cfg.Ramp, "ramp", 1*time.Minute, "爬坡时间")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", 30*time.Second, "心跳间隔")
	flag.IntVar(&cfg.MsgRate, "msg-rate", 10, "每连接每分钟消息数（messaging 模式）")
	flag.IntVar(&cfg.PayloadSize, "payload-size", 128, "消息体大小（字节）")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", "dev-secret-change-me", "签发测试 token 的 HS256 密钥")
	flag.StringVar(&cfg.Token, "token", "", "静态 token，设置后所有连接复用")
	flag.Uint64Var(&cfg.BaseUserID, "base-user", 100000, "压测用户ID起点")
	flag.StringVar(&cfg.Output, "output", "text", "输出格式: text, json, csv")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "详细输出")

	flag.Parse()

	return cfg
}

// mintToken 为压测用户签发 HS256 token，sub 为用户ID
func mintToken(secret string, userID uint64) (string, error) {
	claims := jwt.StandardClaims{
		Subject:   fmt.Sprintf("%d", userID),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func runBench(ctx context.Context, cfg Config, stats *Stats) {
	var wg sync.WaitGroup
	connCh := make(chan *Conn, cfg.Conns)

	// 计算每秒连接数（爬坡）
	connsPerSecond := float64(cfg.Conns) / cfg.Ramp.Seconds()
	if connsPerSecond < 1 {
		connsPerSecond = 1
	}

	fmt.Printf("爬坡速率: %.1f 连接/秒\n\n", connsPerSecond)

	// 进度条
	bar := progressbar.NewOptions(cfg.Conns,
		progressbar.OptionSetDescription("建立连接"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("conn"),
	)

	// 爬坡建立连接
	ticker := time.NewTicker(time.Duration(float64(time.Second) / connsPerSecond))
	defer ticker.Stop()

	connID := 0
	rampDone := false

	for !rampDone {
		select {
		case <-ctx.Done():
			rampDone = true
		case <-ticker.C:
			if connID >= cfg.Conns {
				rampDone = true
				continue
			}

			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				conn := createConnection(ctx, id, cfg, stats)
				if conn != nil {
					select {
					case connCh <- conn:
					case <-ctx.Done():
						// context 已取消，关闭连接
						conn.conn.Close()
					}
				}
				bar.Add(1)
			}(connID)
			connID++
		}
	}

	bar.Finish()
	fmt.Println()

	// 等待所有连接 goroutine 完成
	wg.Wait()

	// 收集已建立的连接
	close(connCh)
	var conns []*Conn
	for c := range connCh {
		conns = append(conns, c)
	}

	fmt.Printf("成功建立 %d 个连接\n", len(conns))

	if len(conns) == 0 {
		fmt.Println("没有成功建立的连接，退出")
		return
	}

	// 等待爬坡完成后的剩余时间
	elapsed := time.Since(stats.StartTime)
	remainingDuration := cfg.Duration - elapsed
	if remainingDuration <= 0 {
		remainingDuration = time.Minute
	}

	fmt.Printf("维持连接 %s...\n\n", remainingDuration)

	// 启动心跳和消息发送
	var connWg sync.WaitGroup
	for _, c := range conns {
		connWg.Add(1)
		go func(c *Conn) {
			defer connWg.Done()
			runConnection(ctx, c, cfg, stats, remainingDuration)
		}(c)
	}

	// 状态报告
	reportTicker := time.NewTicker(10 * time.Second)
	defer reportTicker.Stop()

	done := make(chan struct{})
	go func() {
		connWg.Wait()
		close(done)
	}()

	timeout := time.After(remainingDuration)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("收到中断信号，等待连接关闭...")
			connWg.Wait()
			return
		case <-timeout:
			fmt.Println("压测时间到，关闭连接...")
			for _, c := range conns {
				c.mu.Lock()
				if c.conn != nil {
					c.conn.Close()
				}
				c.mu.Unlock()
			}
			connWg.Wait()
			return
		case <-done:
			return
		case <-reportTicker.C:
			printProgress(stats)
		}
	}
}

func createConnection(ctx context.Context, id int, cfg Config, stats *Stats) *Conn {
	atomic.AddInt64(&stats.TotalAttempts, 1)

	userID := cfg.BaseUserID + uint64(id)
	token := cfg.Token
	if token == "" {
		var err error
		token, err = mintToken(cfg.JWTSecret, userID)
		if err != nil {
			atomic.AddInt64(&stats.FailedConns, 1)
			return nil
		}
	}

	start := time.Now()

	url := fmt.Sprintf("%s?token=%s&device_id=bench_%d&platform=web", cfg.Target, token, id)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		atomic.AddInt64(&stats.FailedConns, 1)
		stats.mu.Lock()
		errStr := err.Error()
		if len(errStr) > 50 {
			errStr = errStr[:50]
		}
		stats.Errors[errStr]++
		stats.mu.Unlock()

		if cfg.Verbose {
			fmt.Printf("连接 %d 失败: %v\n", id, err)
		}
		return nil
	}

	latency := time.Since(start).Nanoseconds()
	stats.mu.Lock()
	stats.ConnLatencies = append(stats.ConnLatencies, latency)
	stats.mu.Unlock()

	atomic.AddInt64(&stats.SuccessConns, 1)
	atomic.AddInt64(&stats.CurrentConns, 1)

	convID := uint64(1)
	if cfg.Convs > 0 {
		convID = 1 + uint64(id%cfg.Convs)
	}
	return &Conn{
		id:        id,
		conn:      ws,
		userID:    userID,
		convID:    convID,
		connected: true,
	}
}

func runConnection(ctx context.Context, c *Conn, cfg Config, stats *Stats, duration time.Duration) {
	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connected = false
		c.mu.Unlock()
		atomic.AddInt64(&stats.CurrentConns, -1)
	}()

	// 服务端按协议层 Ping 保活，自动回 Pong
	c.conn.SetPingHandler(func(appData string) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn == nil {
			return nil
		}
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return c.conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	// 读取消息的 goroutine
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				return
			}

			// 读超时要盖过服务端的 ping 周期
			conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					atomic.AddInt64(&stats.Disconnects, 1)
				}
				return
			}

			atomic.AddInt64(&stats.MessagesReceived, 1)
			handleDownlink(c, msg, stats)
		}
	}()

	// 心跳 ticker
	pingTicker := time.NewTicker(cfg.PingInterval)
	defer pingTicker.Stop()

	// 消息发送 ticker（messaging 模式）
	var msgTicker *time.Ticker
	if cfg.Mode == "messaging" && cfg.MsgRate > 0 {
		interval := time.Minute / time.Duration(cfg.MsgRate)
		msgTicker = time.NewTicker(interval)
		defer msgTicker.Stop()
	}

	timeout := time.After(duration)

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			return
		case <-readDone:
			return
		case <-pingTicker.C:
			sendPing(c, stats)
		default:
			if msgTicker != nil {
				select {
				case <-msgTicker.C:
					sendMessage(c, cfg, stats)
				default:
				}
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// handleDownlink 解析下行帧：pong 计数、notify 对账 ACK 延迟、error 按码聚合
func handleDownlink(c *Conn, msg []byte, stats *Stats) {
	var frame struct {
		Type string          `json:"type"`
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(msg, &frame) != nil {
		return
	}

	switch frame.Type {
	case "pong":
		atomic.AddInt64(&stats.PongsReceived, 1)

	case "notify":
		var ack struct {
			TempID    string `json:"temp_id"`
			Duplicate bool   `json:"duplicate"`
		}
		if json.Unmarshal(frame.Data, &ack) != nil || ack.TempID == "" {
			return
		}
		atomic.AddInt64(&stats.AcksReceived, 1)
		if ack.Duplicate {
			atomic.AddInt64(&stats.DuplicateAcks, 1)
		}
		if sentAt, ok := c.inflight.LoadAndDelete(ack.TempID); ok {
			latency := time.Since(sentAt.(time.Time)).Nanoseconds()
			stats.mu.Lock()
			stats.MsgLatencies = append(stats.MsgLatencies, latency)
			stats.mu.Unlock()
		}

	case "error":
		var e struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(frame.Data, &e) == nil && e.Code != "" {
			stats.mu.Lock()
			stats.Errors[e.Code]++
			stats.mu.Unlock()
		}
		atomic.AddInt64(&stats.MessagesFailed, 1)

	default:
		// message.new / typing.* / presence.changed 等广播事件
		atomic.AddInt64(&stats.EventsReceived, 1)
	}
}

func sendPing(c *Conn, stats *Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected {
		return
	}

	msg := map[string]interface{}{
		"type": "ping",
		"ts":   time.Now().UnixMilli(),
	}
	data, _ := json.Marshal(msg)

	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		stats.mu.Lock()
		stats.Errors["ping_failed"]++
		stats.mu.Unlock()
		return
	}

	atomic.AddInt64(&stats.PingsSent, 1)
}

func sendMessage(c *Conn, cfg Config, stats *Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected {
		return
	}

	payload := make([]byte, cfg.PayloadSize)
	for i := range payload {
		payload[i] = 'x'
	}

	tempID := uuid.NewString()
	msg := map[string]interface{}{
		"type": "send_message",
		"id":   tempID,
		"data": map[string]interface{}{
			"conversation_id": c.convID,
			"temp_id":         tempID,
			"content_type":    1,
			"content":         string(payload),
		},
		"ts": time.Now().UnixMilli(),
	}
	data, _ := json.Marshal(msg)

	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	c.inflight.Store(tempID, time.Now())
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.inflight.Delete(tempID)
		atomic.AddInt64(&stats.MessagesFailed, 1)
		return
	}

	atomic.AddInt64(&stats.MessagesSent, 1)
}

func printProgress(stats *Stats) {
	current := atomic.LoadInt64(&stats.CurrentConns)
	success := atomic.LoadInt64(&stats.SuccessConns)
	failed := atomic.LoadInt64(&stats.FailedConns)
	disconnects := atomic.LoadInt64(&stats.Disconnects)
	sent := atomic.LoadInt64(&stats.MessagesSent)
	acks := atomic.LoadInt64(&stats.AcksReceived)

	elapsed := time.Since(stats.StartTime)
	fmt.Printf("[%s] 当前连接: %d | 成功: %d | 失败: %d | 断开: %d | 发送/ACK: %d/%d\n",
		elapsed.Round(time.Second), current, success, failed, disconnects, sent, acks)
}

func generateResult(cfg Config, stats *Stats) Result {
	result := Result{
		Config:         cfg,
		TotalAttempts:  stats.TotalAttempts,
		SuccessConns:   stats.SuccessConns,
		FailedConns:    stats.FailedConns,
		Disconnects:    stats.Disconnects,
		FinalConns:     stats.CurrentConns,
		MessagesSent:   stats.MessagesSent,
		AcksReceived:   stats.AcksReceived,
		EventsReceived: stats.EventsReceived,
		DuplicateAcks:  stats.DuplicateAcks,
		PingsSent:      stats.PingsSent,
		PongsReceived:  stats.PongsReceived,
		Errors:         stats.Errors,
		Duration:       cfg.Duration,
		ActualTime:     stats.EndTime.Sub(stats.StartTime).Seconds(),
	}

	if stats.TotalAttempts > 0 {
		result.SuccessRate = float64(stats.SuccessConns) / float64(stats.TotalAttempts) * 100
	}
	if stats.PingsSent > 0 {
		result.PongRate = float64(stats.PongsReceived) / float64(stats.PingsSent) * 100
	}

	// 计算连接延迟
	result.ConnLatency = calculateLatencyStats(stats.ConnLatencies)

	// 计算发送到 ACK 的往返延迟
	if len(stats.MsgLatencies) > 0 {
		result.AckLatency = calculateLatencyStats(stats.MsgLatencies)
	}

	return result
}

func calculateLatencyStats(latencies []int64) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	// 排序
	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	// 转换为毫秒
	toMs := func(ns int64) float64 { return float64(ns) / 1e6 }

	// 计算统计值
	var sum int64
	for _, v := range sorted {
		sum += v
	}
	avg := float64(sum) / float64(len(sorted))

	// 标准差
	var variance float64
	for _, v := range sorted {
		diff := float64(v) - avg
		variance += diff * diff
	}
	variance /= float64(len(sorted))
	stdDev := math.Sqrt(variance)

	return LatencyStats{
		Min:    toMs(sorted[0]),
		Max:    toMs(sorted[len(sorted)-1]),
		Avg:    toMs(int64(avg)),
		P50:    toMs(sorted[len(sorted)*50/100]),
		P90:    toMs(sorted[len(sorted)*90/100]),
		P95:    toMs(sorted[len(sorted)*95/100]),
		P99:    toMs(sorted[len(sorted)*99/100]),
		StdDev: toMs(int64(stdDev)),
	}
}

func outputJSON(result Result) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON 编码错误: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputText(result Result) {
	fmt.Println()
	fmt.Println("==================== 压测结果 ====================")
	fmt.Println()
	fmt.Println("--- 连接统计 ---")
	fmt.Printf("尝试连接数:     %d\n", result.TotalAttempts)
	fmt.Printf("成功连接数:     %d\n", result.SuccessConns)
	fmt.Printf("失败连接数:     %d\n", result.FailedConns)
	fmt.Printf("连接成功率:     %.2f%%\n", result.SuccessRate)
	fmt.Printf("断开连接数:     %d\n", result.Disconnects)
	fmt.Printf("最终连接数:     %d\n", result.FinalConns)
	fmt.Println()

	fmt.Println("--- 连接延迟 (ms) ---")
	fmt.Printf("Min:    %.2f\n", result.ConnLatency.Min)
	fmt.Printf("Max:    %.2f\n", result.ConnLatency.Max)
	fmt.Printf("Avg:    %.2f\n", result.ConnLatency.Avg)
	fmt.Printf("P50:    %.2f\n", result.ConnLatency.P50)
	fmt.Printf("P90:    %.2f\n", result.ConnLatency.P90)
	fmt.Printf("P95:    %.2f\n", result.ConnLatency.P95)
	fmt.Printf("P99:    %.2f\n", result.ConnLatency.P99)
	fmt.Printf("StdDev: %.2f\n", result.ConnLatency.StdDev)
	fmt.Println()

	if result.Config.Mode == "messaging" {
		fmt.Println("--- 消息统计 ---")
		fmt.Printf("发送消息数:     %d\n", result.MessagesSent)
		fmt.Printf("ACK 数:         %d\n", result.AcksReceived)
		fmt.Printf("重复 ACK 数:    %d\n", result.DuplicateAcks)
		fmt.Printf("收到广播事件数: %d\n", result.EventsReceived)
		fmt.Println()

		fmt.Println("--- ACK 往返延迟 (ms) ---")
		fmt.Printf("P50:    %.2f\n", result.AckLatency.P50)
		fmt.Printf("P95:    %.2f\n", result.AckLatency.P95)
		fmt.Printf("P99:    %.2f\n", result.AckLatency.P99)
		fmt.Println()
	}

	fmt.Println("--- 心跳统计 ---")
	fmt.Printf("发送 Ping 数:   %d\n", result.PingsSent)
	fmt.Printf("接收 Pong 数:   %d\n", result.PongsReceived)
	fmt.Printf("Pong 响应率:    %.2f%%\n", result.PongRate)
	fmt.Println()

	if len(result.Errors) > 0 {
		fmt.Println("--- 错误统计 ---")
		for err, count := range result.Errors {
			fmt.Printf("%s: %d\n", err, count)
		}
		fmt.Println()
	}

	fmt.Printf("--- 运行时间: %.2f 秒 ---\n", result.ActualTime)
	fmt.Println()
	fmt.Println("=================================================")
}

func outputCSV(result Result) {
	// CSV Header
	fmt.Println("metric,value")

	// 基础信息
	fmt.Printf("mode,%s\n", result.Config.Mode)
	fmt.Printf("target,%s\n", result.Config.Target)
	fmt.Printf("target_conns,%d\n", result.Config.Conns)
	fmt.Printf("duration_seconds,%.2f\n", result.ActualTime)

	// 连接统计
	fmt.Printf("total_attempts,%d\n", result.TotalAttempts)
	fmt.Printf("success_conns,%d\n", result.SuccessConns)
	fmt.Printf("failed_conns,%d\n", result.FailedConns)
	fmt.Printf("success_rate_percent,%.2f\n", result.SuccessRate)
	fmt.Printf("disconnects,%d\n", result.Disconnects)
	fmt.Printf("final_conns,%d\n", result.FinalConns)

	// 连接延迟
	fmt.Printf("conn_latency_min_ms,%.2f\n", result.ConnLatency.Min)
	fmt.Printf("conn_latency_max_ms,%.2f\n", result.ConnLatency.Max)
	fmt.Printf("conn_latency_avg_ms,%.2f\n", result.ConnLatency.Avg)
	fmt.Printf("conn_latency_p50_ms,%.2f\n", result.ConnLatency.P50)
	fmt.Printf("conn_latency_p90_ms,%.2f\n", result.ConnLatency.P90)
	fmt.Printf("conn_latency_p95_ms,%.2f\n", result.ConnLatency.P95)
	fmt.Printf("conn_latency_p99_ms,%.2f\n", result.ConnLatency.P99)
	fmt.Printf("conn_latency_stddev_ms,%.2f\n", result.ConnLatency.StdDev)

	// 消息统计
	if result.Config.Mode == "messaging" {
		fmt.Printf("messages_sent,%d\n", result.MessagesSent)
		fmt.Printf("acks_received,%d\n", result.AcksReceived)
		fmt.Printf("duplicate_acks,%d\n", result.DuplicateAcks)
		fmt.Printf("events_received,%d\n", result.EventsReceived)
		fmt.Printf("ack_latency_p50_ms,%.2f\n", result.AckLatency.P50)
		fmt.Printf("ack_latency_p95_ms,%.2f\n", result.AckLatency.P95)
		fmt.Printf("ack_latency_p99_ms,%.2f\n", result.AckLatency.P99)
	}

	// 心跳统计
	fmt.Printf("pings_sent,%d\n", result.PingsSent)
	fmt.Printf("pongs_received,%d\n", result.PongsReceived)
	fmt.Printf("pong_rate_percent,%.2f\n", result.PongRate)
}
