package discovery

import (
	"encoding/hex"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// KademliaProtocolName 由创世哈希和可选分叉标识派生的 Kademlia 协议名
func KademliaProtocolName(genesisHash []byte, forkID string) types.ProtocolName {
	genesis := hex.EncodeToString(genesisHash)
	if forkID != "" {
		return types.ProtocolName("/" + genesis + "/" + forkID + "/kad")
	}
	return types.ProtocolName("/" + genesis + "/kad")
}

// LegacyKademliaProtocolName 由协议标识派生的旧式 Kademlia 协议名
func LegacyKademliaProtocolName(protocolID string) types.ProtocolName {
	return types.ProtocolName("/" + protocolID + "/kad")
}
