package discovery

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// DefaultServiceName is the mDNS service peers advertise under
const DefaultServiceName = "dfs"

// mdnsNotifee forwards local network discoveries
type mdnsNotifee struct {
	self   peer.ID
	onPeer func(peer.AddrInfo)
}

// HandlePeerFound reports every peer except ourselves
func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.self {
		return
	}
	n.onPeer(pi)
}

// StartMDNS advertises h on the local network and reports peers found there
func StartMDNS(h host.Host, serviceName string, onPeer func(peer.AddrInfo)) (mdns.Service, error) {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	svc := mdns.NewMdnsService(h, serviceName, &mdnsNotifee{self: h.ID(), onPeer: onPeer})
	if err := svc.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mDNS: %w", err)
	}
	return svc, nil
}
