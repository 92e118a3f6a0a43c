package discovery

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-chainnet/internal/util/addrutil"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// addressConfirmations 统计 identify 观察到的本节点地址
//
// 同一地址被足够多的不同节点报告后确认一次，之后不再重复确认。
type addressConfirmations struct {
	threshold int
	seen      *lru.Cache[string, *observedAddress]
}

type observedAddress struct {
	reporters map[types.PeerID]struct{}
	confirmed bool
}

func newAddressConfirmations(threshold, size int) *addressConfirmations {
	cache, err := lru.New[string, *observedAddress](size)
	if err != nil {
		// size 已由配置校验保证为正
		panic(err)
	}
	return &addressConfirmations{threshold: threshold, seen: cache}
}

// observe 记录一次观察，返回该地址是否在本次得到确认
//
// 回环与未指定地址永远不会被确认。
func (a *addressConfirmations) observe(reporter types.PeerID, addr types.Multiaddr) bool {
	if !addrutil.IsRoutable(addr) {
		return false
	}
	key := addr.String()

	entry, ok := a.seen.Get(key)
	if !ok {
		entry = &observedAddress{reporters: make(map[types.PeerID]struct{})}
		a.seen.Add(key, entry)
	}
	if entry.confirmed {
		return false
	}

	entry.reporters[reporter] = struct{}{}
	if len(entry.reporters) >= a.threshold {
		entry.confirmed = true
		entry.reporters = nil
		return true
	}
	return false
}
