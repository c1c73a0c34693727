package models

import (
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
)

// Identity describes a device on the LAN. It is also the discovery datagram payload.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Alias string    `json:"alias"`
	Port  uint16    `json:"port"`
}

// PeerInfo is an Identity as received from another device. Its content is untrusted.
type PeerInfo = Identity

// Peer is a remote device plus the address its announce arrived from.
type Peer struct {
	Info PeerInfo `json:"info"`
	IP   string   `json:"ip"`
}

// String renders the identity for logs.
func (i Identity) String() string {
	return fmt.Sprintf("%s (%s) port=%d", i.Alias, i.ID, i.Port)
}

// Addr returns the host:port of the peer's rendezvous HTTP service.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(int(p.Info.Port)))
}
