// Package discovery 实现节点发现聚合器
//
// Discovery 把 ping、identify、Kademlia 与可选的 mDNS 四路事件源合并为一个
// 有序事件序列，并按固定节奏对随机目标发起 Kademlia 查找以保持路由表充实。
//
// # 轮询顺序
//
// 每次 PollNext 最多产出一个事件，优先级固定：
//
//  0. 已合成待发的外部地址确认事件
//  1. 查找定时器到期则启动随机查找
//  2. ping 事件（事件源终止即聚合器终止）
//  3. identify 事件（同上）
//  4. Kademlia 事件
//  5. mDNS 事件（启用时）
//
// Discovery 只由后端工作协程驱动，内部不加锁。事件源由传输层通过
// Protocols 中的队列投递，任何投递都会唤醒后端。
package discovery
