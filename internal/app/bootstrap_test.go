package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-chainnet/config"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/service"
	"github.com/dep2p/go-chainnet/internal/util/deadline"
	"github.com/dep2p/go-chainnet/pkg/types"
)

const echoProtocol = "/test/echo/1"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Network.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.Network.GenesisHash = "0xab"
	cfg.Network.DefaultProtocol = echoProtocol
	cfg.RequestResponse.Protocols = []config.ProtocolConfig{config.DefaultProtocolConfig(echoProtocol)}
	cfg.Metrics.Enable = true
	cfg.Metrics.ListenAddr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func startNode(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rt, err := NewBootstrap(cfg).Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, rt.Stop(context.Background()))
	})
	return rt
}

// TestModules_fxtest 测试模块可组装、启动与停止
func TestModules_fxtest(t *testing.T) {
	b := NewBootstrap(testConfig(t))

	var svc service.Service
	var protocols *Protocols
	app := fxtest.New(t, b.Options(), fx.Populate(&svc, &protocols))
	app.RequireStart()

	require.NotNil(t, b.runtime)
	assert.NotEmpty(t, b.runtime.MetricsAddr())
	assert.NotNil(t, b.runtime.Inbound(echoProtocol))
	assert.Nil(t, b.runtime.Inbound("/missing/1"))
	require.Len(t, protocols.Handles, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.NumConnectedPeers)

	app.RequireStop()

	// 停止后门面调用立即返回
	_, err = svc.Status(context.Background())
	assert.ErrorIs(t, err, service.ErrServiceClosed)
	t.Log("✅ fx 模块组装正常")
}

// TestBootstrap_InvalidConfig 测试配置无效时拒绝启动
func TestBootstrap_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Network.GenesisHash = ""

	_, err := NewBootstrap(cfg).Start(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// TestBootstrap_MetricsDisabled 测试关闭指标时不启动服务
func TestBootstrap_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enable = false

	rt := startNode(t, cfg)
	assert.Nil(t, rt.Metrics)
	assert.Empty(t, rt.MetricsAddr())
}

// TestBootstrap_FatalShutsDown 测试致命错误触发应用关闭
func TestBootstrap_FatalShutsDown(t *testing.T) {
	var fatal deadline.FatalHandler
	rt, err := NewBootstrap(testConfig(t), WithFxOptions(fx.Populate(&fatal))).Start(context.Background())
	require.NoError(t, err)
	defer func() { _ = rt.Stop(context.Background()) }()

	fatal(assert.AnError)

	select {
	case sig := <-rt.Done():
		assert.Equal(t, 1, sig.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("expected shutdown signal")
	}
}

// TestBootstrap_RequestResponse 测试两个节点之间的完整请求-响应
func TestBootstrap_RequestResponse(t *testing.T) {
	a := startNode(t, testConfig(t))
	b := startNode(t, testConfig(t))

	// b 回显请求
	go func() {
		for req := range b.Inbound(echoProtocol) {
			req.Respond(reqresp.OutgoingResponse{Result: append([]byte("echo:"), req.Payload...)})
		}
	}()

	addrs := b.Transport.Addrs()
	require.NotEmpty(t, addrs)
	id, addr, err := types.SplitP2PAddr(addrs[0])
	require.NoError(t, err)
	require.Equal(t, b.Service.LocalPeerID(), id)
	a.Service.AddKnownAddress(id, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := a.Service.Request(ctx, id, echoProtocol, []byte("hi"), types.TryConnect)
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:hi"), resp.Payload)

	require.Eventually(t, func() bool {
		return a.Service.NumConnectedPeers() == 1 && b.Service.NumConnectedPeers() == 1
	}, 5*time.Second, 20*time.Millisecond)

	_, err = a.Service.Request(ctx, id, "/missing/1", nil, types.ImmediateError)
	assert.ErrorIs(t, err, types.ErrUnknownProtocol)
	t.Log("✅ 节点间请求-响应正常")
}
