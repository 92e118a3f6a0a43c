// Package interfaces 定义 chainnet 核心依赖的外部协作方接口
//
//   - peerstore.go  - 节点信誉与角色存储
//   - transport.go  - 传输管理器（连接、地址、带宽）
package interfaces
