// Package protocolids 定义 chainnet 自身使用的协议 ID
//
// # 协议命名规范
//
//   - 系统协议: /chainnet/{name}/{version}
//     由网络层内部使用，例如角色握手 /chainnet/roles/1。
//
//   - Kademlia: /{genesis}[/{fork}]/kad 与旧式 /{protocol-id}/kad，
//     由 discovery 包按链标识派生。
//
//   - 请求-响应: 由应用注册，必须以 / 开头，且不得占用上述两类名字。
package protocolids
