package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chatloop/realtime_service/internal/adapters/in/ws"
	"github.com/chatloop/realtime_service/internal/adapters/out/auth"
	"github.com/chatloop/realtime_service/internal/adapters/out/db"
	"github.com/chatloop/realtime_service/internal/adapters/out/mq"
	redisRepo "github.com/chatloop/realtime_service/internal/adapters/out/redis"
	"github.com/chatloop/realtime_service/internal/application"
	"github.com/chatloop/realtime_service/internal/ports/out"
	"github.com/chatloop/realtime_service/pkg/zlog"
)

func main() {
	// 加载配置
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	os.Setenv("APP_ENV", env)
	logCfgPath := filepath.Join(".", "configs", fmt.Sprintf("config.%s.yaml", env))
	if _, err := os.Stat(logCfgPath); os.IsNotExist(err) {
		logCfgPath = filepath.Join("..", "configs", fmt.Sprintf("config.%s.yaml", env))
	}

	logCfg, err := zlog.LoadConfig(logCfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载日志配置失败: %v\n", err)
		os.Exit(1)
	}
	logCfg.Service = "realtime-service"
	zlog.MustInitGlobal(*logCfg)
	defer zap.L().Sync()

	logger := zap.L()
	logger.Info("realtime_service starting", zap.String("env", env))

	nodeID := getNodeID()

	// 初始化数据库
	database, err := initDB()
	if err != nil {
		logger.Fatal("Failed to init database", zap.Error(err))
	}

	// 初始化Redis
	redisClient, err := initRedis()
	if err != nil {
		logger.Fatal("Failed to init redis", zap.Error(err))
	}

	// 初始化仓储
	messageRepo := db.NewMessageRepositoryMySQL(database)
	seqRepo := db.NewSequenceRepositoryMySQL(database)
	receiptRepo := db.NewReceiptRepositoryMySQL(database)
	membershipRepo := db.NewMembershipRepositoryMySQL(database)
	contactRepo := db.NewContactRepositoryMySQL(database)
	presenceRepo := redisRepo.NewPresenceRepositoryRedis(redisClient)
	policyRepo := redisRepo.NewPolicyRepositoryRedis(redisClient)

	// 初始化Kafka发布器；未配置 broker 时单机运行，跨节点扇出关闭
	var eventPub out.EventPublisher
	kafkaBrokers := viper.GetStringSlice("kafka.brokers")
	if len(kafkaBrokers) > 0 {
		eventPub, err = mq.NewKafkaEventPublisher(kafkaBrokers)
		if err != nil {
			logger.Fatal("Failed to init kafka publisher", zap.Error(err))
		}
	}

	// 初始化核心结构
	registry := application.NewSessionRegistry()
	router := application.NewRoomRouter(membershipRepo)

	// 初始化用例层
	presenceUseCase := application.NewPresenceTracker(
		presenceRepo, policyRepo, membershipRepo, contactRepo, eventPub, registry, router, nodeID)
	typingUseCase := application.NewTypingBroadcaster(router)
	receiptUseCase := application.NewReceiptTracker(
		receiptRepo, messageRepo, membershipRepo, eventPub, router, nodeID)
	messageUseCase := application.NewMessageUseCase(
		messageRepo, seqRepo, membershipRepo, eventPub, router, nodeID)
	connUseCase := application.NewConnectionUseCase(registry, router, presenceUseCase, presenceRepo)

	// 启动输入状态清扫
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go typingUseCase.Run(ctx)

	// 初始化Kafka消费者
	var consumer *mq.KafkaEventConsumer
	if len(kafkaBrokers) > 0 {
		groupID := viper.GetString("kafka.group_id")
		if groupID == "" {
			groupID = "realtime-" + nodeID
		}
		consumer, err = mq.NewKafkaEventConsumer(
			kafkaBrokers, groupID, nodeID, messageUseCase, receiptUseCase, presenceUseCase)
		if err != nil {
			logger.Fatal("Failed to init kafka consumer", zap.Error(err))
		}
		if err := consumer.Start(ctx); err != nil {
			logger.Fatal("Failed to start kafka consumer", zap.Error(err))
		}
	}

	// 初始化WebSocket服务器
	tokenVerifier := auth.NewJWTVerifier(viper.GetString("jwt.secret"))
	wsServer := ws.NewWSServer(tokenVerifier, connUseCase, messageUseCase, typingUseCase, receiptUseCase)

	// Prometheus
	promRegistry := prometheus.NewRegistry()
	application.RegisterMetrics(promRegistry)
	zlog.RegisterMetrics(promRegistry)

	// 初始化HTTP服务器
	gin.SetMode(gin.ReleaseMode)
	ginRouter := gin.New()
	ginRouter.Use(zlog.GinLogger(), gin.Recovery())

	// WebSocket端点
	ginRouter.GET("/ws", func(c *gin.Context) {
		wsServer.HandleConnection(c.Writer, c.Request)
	})

	// 健康检查
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node_id": nodeID})
	})

	// 统计信息
	ginRouter.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, registry.Stats())
	})

	// 在线状态查询（viewer_id 实际部署时应取自网关注入的身份头）
	ginRouter.GET("/presence/:user_id", func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		viewerID, _ := strconv.ParseUint(c.Query("viewer_id"), 10, 64)

		presence, err := presenceUseCase.GetPresence(c.Request.Context(), viewerID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, presence)
	})

	// 未读数查询
	ginRouter.GET("/conversations/:conversation_id/unread", func(c *gin.Context) {
		convID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
			return
		}
		userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}

		count, err := receiptUseCase.UnreadCount(c.Request.Context(), convID, userID)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "user_id": userID, "unread": count})
	})

	// Prometheus指标
	ginRouter.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	// 运行时日志级别调整
	ginRouter.Any("/log/level", gin.WrapH(zlog.LevelHTTPHandler()))

	// 启动HTTP服务器
	httpPort := viper.GetInt("server.http_port")
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: ginRouter,
	}

	go func() {
		logger.Info("Realtime server starting", zap.Int("port", httpPort), zap.String("nodeID", nodeID))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Warn("Kafka consumer stop error", zap.Error(err))
		}
	}
	if eventPub != nil {
		if err := eventPub.Close(); err != nil {
			logger.Warn("Kafka publisher close error", zap.Error(err))
		}
	}

	logger.Info("Server exited properly")
}

func loadConfig() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	return viper.ReadInConfig()
}

func initDB() (*gorm.DB, error) {
	dsn := viper.GetString("mysql.dsn")

	database, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// 驱动原生错误翻译成 gorm.ErrDuplicatedKey 等哨兵，仓储层靠它识别唯一索引冲突
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(viper.GetInt("mysql.max_idle_conns"))
	sqlDB.SetMaxOpenConns(viper.GetInt("mysql.max_open_conns"))
	sqlDB.SetConnMaxLifetime(time.Hour)

	return database, nil
}

func initRedis() (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
		PoolSize: viper.GetInt("redis.pool_size"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// getNodeID 节点标识，跨节点事件用它跳过自己发布的事件
func getNodeID() string {
	if id := viper.GetString("server.node_id"); id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return hostname
}
