// Package chainnet 提供区块链节点的网络层：节点发现与请求-响应
//
// chainnet 在 libp2p 之上组合三部分：
//
//   - 发现：Kademlia（主 DHT + 旧式 DHT）、mDNS、ping、identify
//   - 请求-响应：按协议名注册的引擎，支持回退协议与信誉调整
//   - 网络服务：所有操作通过命令队列交给单个后端工作协程
//
// # 快速开始
//
//	node, err := chainnet.Start(ctx,
//	    chainnet.WithGenesis("0x91b171bb158e2d38"),
//	    chainnet.WithListenAddrs("/ip4/0.0.0.0/tcp/30333"),
//	    chainnet.WithRequestResponseProtocol(config.DefaultProtocolConfig("/dot/sync/2")),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	svc, _ := node.Service()
//	resp, err := svc.Request(ctx, peerID, "/dot/sync/2", payload, types.TryConnect)
//
// # 入站请求
//
// 配置了 InboundQueueSize 的协议通过 Node.Inbound 暴露入站请求，
// 应用必须对每个请求调用 Respond 或 Drop。
//
// # 事件
//
//	sub := svc.EventStream("sync")
//	for ev := range sub.C() {
//	    ...
//	}
package chainnet
