// Package main 提供 chainnet 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dep2p/go-chainnet"
	"github.com/dep2p/go-chainnet/config"
	"github.com/dep2p/go-chainnet/internal/util/logger"
)

var log = logger.Logger("cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 优先级（从高到低）：命令行参数 > CHAINNET_* 环境变量 > 配置文件 > 默认值
var (
	configFile  = flag.String("config", "", "配置文件路径（.json / .yaml / .toml）")
	listen      = flag.String("listen", "", "监听地址，逗号分隔")
	genesis     = flag.String("genesis", "", "创世块哈希（十六进制）")
	forkID      = flag.String("fork", "", "分叉标识")
	protocolID  = flag.String("protocol-id", "", "旧式协议标识")
	enableMDNS  = flag.Bool("mdns", false, "启用局域网发现")
	metricsAddr = flag.String("metrics", "", "指标服务监听地址，如 127.0.0.1:9615")
	logFile     = flag.String("log", "", "日志文件路径")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(chainnet.VersionInfo())
		return nil
	}

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // G304: 用户指定的日志路径
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		defer func() { _ = f.Close() }()
		logger.SetOutput(f)
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info("启动 chainnet 节点", "version", chainnet.Version, "commit", chainnet.GitCommit)
	node, err := chainnet.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		fmt.Println("\n正在关闭节点...")
		if err := node.Close(); err != nil {
			log.Warn("关闭节点出错", "error", err)
		}
	}()

	printNodeInfo(node)
	fmt.Println("节点已启动，按 Ctrl+C 退出")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-signals:
		log.Info("收到信号，正在退出", "signal", sig.String())
	case sig := <-node.Done():
		if sig.ExitCode != 0 {
			return fmt.Errorf("节点异常退出 (code %d)", sig.ExitCode)
		}
	}
	return nil
}

// buildOptions 按优先级合并配置
func buildOptions() ([]chainnet.Option, error) {
	var opts []chainnet.Option

	// 配置文件内已应用环境变量
	if *configFile != "" {
		opts = append(opts, chainnet.WithConfigFile(*configFile))
	} else {
		cfg := config.NewConfig()
		config.ApplyEnv(cfg, os.LookupEnv)
		opts = append(opts, chainnet.WithConfig(cfg))
	}

	if *listen != "" {
		var addrs []string
		for _, a := range strings.Split(*listen, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		opts = append(opts, chainnet.WithListenAddrs(addrs...))
	}
	if *genesis != "" {
		opts = append(opts, chainnet.WithGenesis(*genesis))
	}
	if isFlagSet("fork") {
		opts = append(opts, chainnet.WithForkID(*forkID))
	}
	if *protocolID != "" {
		opts = append(opts, chainnet.WithProtocolID(*protocolID))
	}
	if isFlagSet("mdns") {
		opts = append(opts, chainnet.WithMDNS(*enableMDNS))
	}
	if *metricsAddr != "" {
		opts = append(opts, chainnet.WithMetrics(*metricsAddr))
	}
	return opts, nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printNodeInfo(node *chainnet.Node) {
	id, err := node.ID()
	if err != nil {
		return
	}
	fmt.Println("════════════════════════════════════════════════════════════")
	fmt.Printf("  节点 ID: %s\n", id)
	for _, addr := range node.ListenAddrs() {
		fmt.Printf("  监听: %s\n", addr)
	}
	if addr := node.MetricsAddr(); addr != "" {
		fmt.Printf("  指标: http://%s/metrics\n", addr)
	}
	fmt.Println("════════════════════════════════════════════════════════════")
	log.Info("节点信息", "peer", id.String(), "addrs", node.ListenAddrs())
}
