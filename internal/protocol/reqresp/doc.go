// Package reqresp 实现按协议名划分的请求-响应引擎
//
// 每个协议名对应一个 Protocol，负责：
//   - 把出站请求的 RequestID 与调用方的应答通道关联
//   - 把入站请求投递给应用的有界通道，通道满时立即拒绝
//   - 在应用作答后先应用信誉调整，再发送响应
//
// ProtocolSet 按协议名持有所有引擎，负责分发发送调用并逐个轮询。
//
// 引擎通过 Handle 与传输层交互：命令走有界通道，事件走队列，
// RequestID 由双方共享的 IDAllocator 分配。
package reqresp
