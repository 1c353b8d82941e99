package discovery

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("discovery")

// ServiceName is the mDNS service pKV servers announce
const ServiceName = "_pkv._tcp"

// MDNS announces the local server and discovers other servers of the same
// topic on the local network.
type MDNS struct {
	address string
	topic   string
	server  *zeroconf.Server
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMDNS announces the node listening on bindAddr (host:port) and browses for
// peers. onPeer is called with the endpoint (host:port) of every discovered server.
func NewMDNS(address, topic, bindAddr string, onPeer func(endpoint string)) (*MDNS, error) {
	_, portStr, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid bind addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid port: %w", err)
	}

	server, err := zeroconf.Register(address, ServiceName, "local.", port, TXT(address, topic), nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry)
	m := &MDNS{
		address: address,
		topic:   topic,
		server:  server,
		cancel:  cancel,
	}

	m.wg.Add(1)
	go m.browseLoop(entries, onPeer)

	if err := resolver.Browse(ctx, ServiceName, "local.", entries); err != nil {
		cancel()
		server.Shutdown()
		m.wg.Wait()
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}

	Logger.Infof("Announcing %s on port %d via mDNS", address, port)
	return m, nil
}

func (m *MDNS) browseLoop(entries <-chan *zeroconf.ServiceEntry, onPeer func(string)) {
	defer m.wg.Done()
	for entry := range entries {
		if !m.accept(entry.Text) {
			continue
		}
		for _, ip := range entry.AddrIPv4 {
			onPeer(net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)))
		}
		for _, ip := range entry.AddrIPv6 {
			onPeer(net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)))
		}
	}
}

// accept filters out the local node and nodes of other topics
func (m *MDNS) accept(txt []string) bool {
	return !slices.Contains(txt, "node="+m.address) && slices.Contains(txt, "topic="+m.topic)
}

// TXT returns the TXT records announced for a node
func TXT(address, topic string) []string {
	return []string{"node=" + address, "topic=" + topic}
}

// Stop shuts down the discovery service.
func (m *MDNS) Stop() {
	if m == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.server.Shutdown()
}
