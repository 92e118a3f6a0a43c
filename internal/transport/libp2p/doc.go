// Package libp2p 基于 go-libp2p 的传输适配层
//
// 把核心模块交出的句柄接到真实网络上：
//
//   - host.go      - libp2p 主机、连接管理器、带宽统计
//   - gater.go     - 连接准入（保留模式、封禁）
//   - manager.go   - interfaces.TransportManager 实现
//   - notify.go    - 连接通知与角色握手
//   - ping.go      - ping 事件源
//   - identify.go  - identify 事件源
//   - kademlia.go  - 主/旧式两个 Kademlia 实例
//   - mdns.go      - 局域网发现
//   - reqresp.go   - 请求-响应流
//   - framing.go   - varint 长度前缀帧
//
// 所有后台 goroutine 由 errgroup 管理，停止时关闭对应事件队列。
package libp2p
