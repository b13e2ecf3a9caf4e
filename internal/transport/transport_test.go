package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/pkg/kqml"
)

func TestStreamTransportReadsSuccessiveMessages(t *testing.T) {
	logger, _ := test.NewNullLogger()
	in := strings.NewReader("(request :reply-with IO-1 :content (IS-DRUG-TARGET))\n) (tell :content (START-CONVERSATION))\n")
	tr := NewStreamTransport(TypeStdio, in, io.Discard, nil, logger)

	msg, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "request", msg.Head())
	assert.Equal(t, "IO-1", msg.Gets("reply-with"))

	_, err = tr.ReadMessage()
	assert.ErrorIs(t, err, kqml.ErrSyntax)

	msg, err = tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "tell", msg.Head())

	_, err = tr.ReadMessage()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestStreamTransportWrite(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var out bytes.Buffer
	tr := NewStreamTransport(TypeStdio, strings.NewReader(""), &out, nil, logger)

	msg := kqml.NewPerformative("register")
	msg.SetToken("name", "DTDA")
	require.NoError(t, tr.WriteMessage(msg))
	assert.Equal(t, "(register :name DTDA)\n", out.String())

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.WriteMessage(msg), ErrClosed)
	_, err := tr.ReadMessage()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialFacilitator(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	tr, err := New(context.Background(), domain.AgentConfig{Transport: "tcp", FacilitatorAddr: ln.Addr().String()}, logger)
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, "tcp", tr.GetType())

	require.NoError(t, tr.WriteMessage(kqml.NewList("tell")))
	assert.Equal(t, "(tell)\n", <-received)
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := New(context.Background(), domain.AgentConfig{Transport: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}
