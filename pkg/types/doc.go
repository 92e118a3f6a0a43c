// Package types 定义 chainnet 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 chainnet 内部包。
//
// # 文件组织
//
//   - ids.go        - PeerID, Multiaddr, QueryID, RequestID, ProtocolName
//   - reputation.go - ReputationChange 信誉调整
//   - roles.go      - ObservedRole 与握手角色解码
//   - request.go    - IfDisconnected, Response, 请求结果错误
//   - events.go     - 网络事件（DHT 结果）
//   - status.go     - NetworkStatus
//   - errors.go     - 公共错误定义
package types
