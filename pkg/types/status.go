package types

// NetworkStatus 网络状态快照
type NetworkStatus struct {
	// NumConnectedPeers 当前连接的节点数
	NumConnectedPeers int

	// TotalBytesInbound 累计入站字节
	TotalBytesInbound uint64

	// TotalBytesOutbound 累计出站字节
	TotalBytesOutbound uint64

	// ExternalAddresses 已确认的外部地址
	ExternalAddresses []Multiaddr
}
