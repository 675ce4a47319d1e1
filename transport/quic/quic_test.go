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

package quic_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/goblockswap/transport/quic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialAccept(t *testing.T) {
	listener, err := quic.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientConn, err := quic.Dial(ctx, listener.Addr().String())
	require.NoError(t, err)
	defer clientConn.Close()
	// The stream is announced to the listener by the first write
	_, err = clientConn.Write([]byte("hello"))
	require.NoError(t, err)

	serverConn, err := listener.Accept()
	require.NoError(t, err)
	defer serverConn.Close()
	assert.NotNil(t, serverConn.RemoteAddr())

	buf := make([]byte, 5)
	require.NoError(t, serverConn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(serverConn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	_, err = serverConn.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(clientConn, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))
}

func TestAcceptAfterClose(t *testing.T) {
	listener, err := quic.Listen("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	_, err = listener.Accept()
	assert.True(t, errors.Is(err, net.ErrClosed))
	// Closing twice is harmless
	assert.NoError(t, listener.Close())
}
