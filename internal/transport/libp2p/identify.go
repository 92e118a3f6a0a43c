package libp2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/event"

	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// runIdentify 把 identify 完成事件转发给发现模块
func (t *Transport) runIdentify(ctx context.Context, cfg discovery.IdentifyConfig) error {
	defer cfg.Events.Close()

	sub, err := t.host.EventBus().Subscribe(new(event.EvtPeerIdentificationCompleted))
	if err != nil {
		return fmt.Errorf("subscribe identify events: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-sub.Out():
			if !ok {
				return nil
			}
			evt, ok := raw.(event.EvtPeerIdentificationCompleted)
			if !ok {
				continue
			}
			_ = cfg.Events.Push(identifiedEvent(evt))
		}
	}
}

func identifiedEvent(evt event.EvtPeerIdentificationCompleted) discovery.IdentifiedEvent {
	protocols := make([]types.ProtocolName, 0, len(evt.Protocols))
	for _, p := range evt.Protocols {
		protocols = append(protocols, types.ProtocolName(p))
	}
	return discovery.IdentifiedEvent{
		Peer:               evt.Peer,
		ObservedAddress:    evt.ObservedAddr,
		SupportedProtocols: protocols,
	}
}
