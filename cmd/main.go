package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	rotates "github.com/lestrrat-go/file-rotatelogs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/firewall_ledger/pkg/api"
	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/engine"
	"github.com/haolipeng/firewall_ledger/pkg/firewall"
	"github.com/haolipeng/firewall_ledger/pkg/ledger"
	"github.com/haolipeng/firewall_ledger/pkg/pipeline"
	"github.com/haolipeng/firewall_ledger/pkg/sink"
	"github.com/haolipeng/firewall_ledger/pkg/source"
)

func InitLogger(cfg *config.Config) error {
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	logrus.SetFormatter(formatter)

	var level logrus.Level
	var err error
	var logWriter *rotates.RotateLogs

	switch cfg.Log.Level {
	case "DEBUG":
		level = logrus.DebugLevel
	case "WARN":
		level = logrus.WarnLevel
	case "INFO":
		level = logrus.InfoLevel
	case "ERROR":
		level = logrus.ErrorLevel
	case "FATAL":
		level = logrus.FatalLevel
	case "PANIC":
		level = logrus.PanicLevel
	default:
		level = logrus.WarnLevel //默认
	}
	logrus.SetLevel(level)

	//1、判断文件路径和文件是否存在，不存在则创建
	if _, err := os.Stat(cfg.Log.Dir); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Log.Dir, 0755); err != nil {
			return err
		}
	}
	logFileName := path.Join(cfg.Log.Dir, cfg.Log.Filename)

	//2、日志切割功能，按时间来切割
	maxAge := time.Duration(cfg.Log.MaxAge) * time.Hour
	rotateTime := time.Duration(cfg.Log.RotateTime) * time.Hour
	options := []rotates.Option{
		rotates.WithMaxAge(maxAge),           //文件最大保存时间
		rotates.WithRotationTime(rotateTime), //文件切割间隔
	}
	if runtime.GOOS != "windows" {
		options = append(options, rotates.WithLinkName(logFileName)) //文件软链接
	}
	logWriter, err = rotates.New(logFileName+".%Y%m%d%H%M", options...)
	if err != nil {
		return err
	}

	//创建 local file system hook
	lfHook := lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: logWriter,
		logrus.InfoLevel:  logWriter,
		logrus.WarnLevel:  logWriter,
		logrus.ErrorLevel: logWriter,
		logrus.FatalLevel: logWriter,
		logrus.PanicLevel: logWriter,
	}, &logrus.TextFormatter{})

	logrus.AddHook(lfHook)
	return nil
}

func main() {
	configFile := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := InitLogger(cfg); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logrus.Info("Starting firewall ledger...")

	// 创建context用于控制生命周期
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spec, err := cfg.PolicySpec()
	if err != nil {
		logrus.Fatalf("Invalid firewall policy: %v", err)
	}
	provider, err := config.NewProvider(spec)
	if err != nil {
		logrus.Fatalf("Failed to build firewall policy: %v", err)
	}
	for _, w := range provider.Snapshot().Warnings() {
		logrus.Warn(w)
	}

	fw := firewall.New(provider,
		firewall.WithEngine(engine.New(engine.WithWorkers(cfg.Pipeline.WorkerCount))),
		firewall.WithHistoryLimit(cfg.Firewall.HistoryLimit),
	)
	l := ledger.New()

	// 加载规则目录，规则加入策略
	ruleService := api.NewRuleService(cfg, provider)

	reg := prometheus.NewRegistry()
	reg.MustRegister(fw.Statistics(), collectors.NewGoCollector())

	// 启动管理接口
	var server *api.Server
	var hub *api.DecisionHub
	if cfg.API.Enabled {
		server = api.NewServer(cfg)
		hub = api.NewDecisionHub()
		server.RegisterRuleService(ruleService)
		server.RegisterFirewallService(api.NewFirewallService(fw, l))
		server.RegisterLedgerService(api.NewLedgerService(l))
		server.RegisterMetrics(reg)
		server.RegisterDecisionHub(hub)

		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("API server stopped: %v", err)
			}
		}()
		logrus.Infof("API listening on %s:%s", cfg.API.Host, cfg.API.Port)
	}

	// 创建pipeline
	var p pipeline.Pipeline
	var pipelineDone <-chan struct{}
	if cfg.Source.Type == "file" {
		p, err = buildPipeline(cfg, fw, l, hub)
		if err != nil {
			logrus.Fatalf("Failed to build pipeline: %v", err)
		}
		if err := p.Start(ctx); err != nil {
			logrus.Fatalf("Failed to start pipeline: %v", err)
		}
		pipelineDone = p.Done()
		logrus.Info("Pipeline started successfully")
	}

	// 等待中断信号，或离线文件处理完成且未开启接口
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logrus.Infof("Received signal %v, shutting down...", sig)
	case <-waitPipeline(pipelineDone, cfg.API.Enabled):
		logrus.Info("Source exhausted, shutting down...")
	}

	// 优雅退出，先让流水线写完最后一批
	if p != nil {
		if err := p.Stop(); err != nil {
			logrus.Errorf("Error stopping pipeline: %v", err)
		}
	}
	cancel()

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Stop(shutdownCtx); err != nil {
			logrus.Errorf("Error stopping API server: %v", err)
		}
		done()
	}

	fmt.Println(fw.Statistics().Snapshot().Report())
	report := l.Verify()
	if report.Valid {
		logrus.Info(report.String())
	} else {
		logrus.Error(report.String())
	}

	logrus.Info("Shutdown complete")
}

// waitPipeline 接口开启时不因数据源结束而退出
func waitPipeline(done <-chan struct{}, apiEnabled bool) <-chan struct{} {
	if done == nil || apiEnabled {
		return nil
	}
	return done
}

func buildPipeline(cfg *config.Config, fw *firewall.Firewall, l *ledger.Ledger, hub *api.DecisionHub) (pipeline.Pipeline, error) {
	p := pipeline.NewPipeline(fw, l)
	if err := p.SetConfig(cfg); err != nil {
		return nil, err
	}

	src, err := source.NewPcapFileSource(cfg.Source.Filename, cfg.Pipeline.BufferSize)
	if err != nil {
		return nil, err
	}
	p.SetSource(src)

	// 设置输出
	fileSink, err := sink.NewFileSink(cfg.Output.DecisionsFile)
	if err != nil {
		return nil, err
	}
	sinks := []pipeline.Sink{fileSink}

	if cfg.NATS.Enabled {
		natsSink, err := sink.NewNATSSink(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		sinks = append(sinks, natsSink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}

	if len(sinks) == 1 {
		p.SetSink(fileSink)
	} else {
		p.SetSink(sink.NewFanout(sinks...))
	}
	return p, nil
}
