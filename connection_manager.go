// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blockswap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol"
)

var (
	ErrPeerNotConnected   = errors.New("peer is not connected")
	ErrConnectionReplaced = errors.New("connection replaced by a newer connection from the same peer")
)

// ConnectionManagerConnClosedFunc is a function that takes a peer ID and an optional error
type ConnectionManagerConnClosedFunc func(peer.Id, error)

// ConnectionManagerPeerConnectedFunc is called when a connection for a peer is added
type ConnectionManagerPeerConnectedFunc func(peer.Id)

// ConnectionManagerTag represents the various tags that can be associated with a host or connection
type ConnectionManagerTag uint16

const (
	ConnectionManagerTagNone ConnectionManagerTag = iota

	ConnectionManagerTagHostTopology
	ConnectionManagerTagHostCommandLine

	ConnectionManagerTagRoleInitiator
	ConnectionManagerTagRoleResponder
)

func (c ConnectionManagerTag) String() string {
	tmp := map[ConnectionManagerTag]string{
		ConnectionManagerTagHostTopology:    "HostTopology",
		ConnectionManagerTagHostCommandLine: "HostCommandLine",
		ConnectionManagerTagRoleInitiator:   "RoleInitiator",
		ConnectionManagerTagRoleResponder:   "RoleResponder",
	}
	ret, ok := tmp[c]
	if !ok {
		return "Unknown"
	}
	return ret
}

// ConnectionManager tracks the live connection for each peer. A second
// connection from the same peer replaces the first
type ConnectionManager struct {
	config           ConnectionManagerConfig
	hosts            []ConnectionManagerHost
	hostsMutex       sync.Mutex
	connections      map[peer.Id]*ConnectionManagerConnection
	connectionsMutex sync.Mutex
	// Serializes callbacks so connect and disconnect notifications for a peer
	// are delivered in order
	callbackMutex sync.Mutex
	waitGroup     sync.WaitGroup
}

type ConnectionManagerConfig struct {
	Logger            *slog.Logger
	PeerConnectedFunc ConnectionManagerPeerConnectedFunc
	ConnClosedFunc    ConnectionManagerConnClosedFunc
}

type ConnectionManagerHost struct {
	Network string
	Address string
	Tags    map[ConnectionManagerTag]bool
}

func NewConnectionManager(cfg ConnectionManagerConfig) *ConnectionManager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ConnectionManager{
		config:      cfg,
		connections: make(map[peer.Id]*ConnectionManagerConnection),
	}
}

func (c *ConnectionManager) AddHost(network string, address string, tags ...ConnectionManagerTag) {
	tmpTags := map[ConnectionManagerTag]bool{}
	for _, tag := range tags {
		tmpTags[tag] = true
	}
	c.hostsMutex.Lock()
	defer c.hostsMutex.Unlock()
	c.hosts = append(
		c.hosts,
		ConnectionManagerHost{
			Network: network,
			Address: address,
			Tags:    tmpTags,
		},
	)
}

func (c *ConnectionManager) AddHostsFromTopology(topology *TopologyConfig) {
	for _, host := range topology.Peers {
		c.AddHost(host.network(), host.address(), ConnectionManagerTagHostTopology)
	}
}

// Hosts returns the configured hosts
func (c *ConnectionManager) Hosts() []ConnectionManagerHost {
	c.hostsMutex.Lock()
	defer c.hostsMutex.Unlock()
	ret := make([]ConnectionManagerHost, len(c.hosts))
	copy(ret, c.hosts)
	return ret
}

// AddConnection registers a connection that has completed the handshake and
// starts its mini-protocols. An existing connection for the same peer is closed
func (c *ConnectionManager) AddConnection(conn *Connection, tags ...ConnectionManagerTag) {
	peerId := conn.RemotePeer()
	entry := &ConnectionManagerConnection{
		Conn: conn,
		Tags: map[ConnectionManagerTag]bool{},
	}
	entry.AddTags(tags...)
	c.callbackMutex.Lock()
	c.connectionsMutex.Lock()
	oldEntry := c.connections[peerId]
	c.connections[peerId] = entry
	c.connectionsMutex.Unlock()
	if oldEntry != nil {
		c.config.Logger.Info("replacing connection",
			"component", "network",
			"peer", peerId.String(),
			"connection_id", oldEntry.Conn.Id().String(),
		)
		if c.config.ConnClosedFunc != nil {
			c.config.ConnClosedFunc(peerId, ErrConnectionReplaced)
		}
		oldEntry.Conn.Close()
	}
	if c.config.PeerConnectedFunc != nil {
		c.config.PeerConnectedFunc(peerId)
	}
	c.callbackMutex.Unlock()
	conn.StartProtocols()
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		err := <-conn.ErrorChan()
		c.callbackMutex.Lock()
		defer c.callbackMutex.Unlock()
		c.connectionsMutex.Lock()
		current := c.connections[peerId] == entry
		if current {
			delete(c.connections, peerId)
		}
		c.connectionsMutex.Unlock()
		// A replaced connection was already reported
		if !current {
			return
		}
		// Make sure the connection is fully shut down
		conn.Close()
		// Call configured connection closed callback func
		if c.config.ConnClosedFunc != nil {
			c.config.ConnClosedFunc(peerId, err)
		}
	}()
}

// RemoveConnection closes the connection for a peer. The connection closed
// callback is called once the connection has shut down
func (c *ConnectionManager) RemoveConnection(peerId peer.Id) {
	c.connectionsMutex.Lock()
	entry := c.connections[peerId]
	c.connectionsMutex.Unlock()
	if entry != nil {
		entry.Conn.Close()
	}
}

func (c *ConnectionManager) GetConnectionByPeer(peerId peer.Id) *ConnectionManagerConnection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	return c.connections[peerId]
}

func (c *ConnectionManager) GetConnectionsByTags(tags ...ConnectionManagerTag) []*ConnectionManagerConnection {
	var ret []*ConnectionManagerConnection
	c.connectionsMutex.Lock()
	for _, conn := range c.connections {
		skipConn := false
		for _, tag := range tags {
			if _, ok := conn.Tags[tag]; !ok {
				skipConn = true
				break
			}
		}
		if !skipConn {
			ret = append(ret, conn)
		}
	}
	c.connectionsMutex.Unlock()
	return ret
}

// SendMessage queues a bitswap message for a connected peer. It never blocks
func (c *ConnectionManager) SendMessage(peerId peer.Id, msg protocol.Message) error {
	entry := c.GetConnectionByPeer(peerId)
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrPeerNotConnected, peerId.String())
	}
	return entry.Conn.Bitswap().SendMessage(msg)
}

// Close closes all connections and waits for their closed callbacks
func (c *ConnectionManager) Close() {
	for _, entry := range c.GetConnectionsByTags() {
		entry.Conn.Close()
	}
	c.waitGroup.Wait()
}

type ConnectionManagerConnection struct {
	Conn *Connection
	Tags map[ConnectionManagerTag]bool
}

func (c *ConnectionManagerConnection) AddTags(tags ...ConnectionManagerTag) {
	for _, tag := range tags {
		c.Tags[tag] = true
	}
}

func (c *ConnectionManagerConnection) RemoveTags(tags ...ConnectionManagerTag) {
	for _, tag := range tags {
		delete(c.Tags, tag)
	}
}
