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

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/goblockswap"
	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/peer"
)

const queryTimeout = 5 * time.Second

const helpText = `commands:
  add <text>                 make a raw block available and print its CID
  want <cid> [priority]      request a block from peers
  want-have <cid> [priority] ask peers whether they hold a block
  cancel <cid>               stop requesting a block
  wants                      list outstanding wants
  peers                      list connected peers
  ledger <peer>              show the ledger for a peer
  quit                       stop the node
`

// runCommands reads commands line by line until quit or EOF
func runCommands(node *blockswap.Node, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := runCommand(node, line, out)
		if err != nil {
			fmt.Fprintf(out, "ERROR: %s\n", err)
		}
		if quit {
			return
		}
	}
}

func runCommand(node *blockswap.Node, line string, out io.Writer) (bool, error) {
	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprint(out, helpText)
	case "add":
		if args == "" {
			return false, errors.New("usage: add <text>")
		}
		blk, err := node.Add([]byte(args))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "added %s\n", blk.Id().String())
	case "want", "want-have":
		id, priority, err := parseWantArgs(args)
		if err != nil {
			return false, err
		}
		if cmd == "want-have" {
			return false, node.WantPresence(id, priority)
		}
		return false, node.Want(id, priority)
	case "cancel":
		id, err := block.ParseId(args)
		if err != nil {
			return false, err
		}
		return false, node.Cancel(id)
	case "wants":
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		wants, err := node.Engine().WantList(ctx)
		if err != nil {
			return false, err
		}
		for _, want := range wants {
			fmt.Fprintf(out, "%s priority=%d type=%s\n", want.Id.String(), want.Priority, want.WantType.String())
		}
	case "peers":
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		peers, err := node.Engine().ConnectedPeers(ctx)
		if err != nil {
			return false, err
		}
		for _, p := range peers {
			fmt.Fprintln(out, p.String())
		}
	case "ledger":
		peerId, err := peer.ParseId(args)
		if err != nil {
			return false, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		snapshot, err := node.Engine().Ledger(ctx, peerId)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(
			out,
			"sent=%d blocks/%d bytes received=%d blocks/%d bytes peer_wants=%d local_wants=%d\n",
			snapshot.Accounting.BlocksSent,
			snapshot.Accounting.BytesSent,
			snapshot.Accounting.BlocksReceived,
			snapshot.Accounting.BytesReceived,
			len(snapshot.PeerWants),
			len(snapshot.LocalWants),
		)
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

func parseWantArgs(args string) (block.Id, int32, error) {
	fields := strings.Fields(args)
	if len(fields) < 1 || len(fields) > 2 {
		return block.Undef, 0, errors.New("usage: want <cid> [priority]")
	}
	id, err := block.ParseId(fields[0])
	if err != nil {
		return block.Undef, 0, err
	}
	var priority int32 = 1
	if len(fields) == 2 {
		tmp, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return block.Undef, 0, fmt.Errorf("invalid priority: %w", err)
		}
		// #nosec G115 -- ParseInt was limited to 32 bits
		priority = int32(tmp)
	}
	return id, priority, nil
}
