package mailer

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

func TestSendRequiresRecipient(t *testing.T) {
	m := New(Config{Host: "localhost", Port: 2525, From: "billing@wyenfos.example"})
	err := m.Send(context.Background(), "  ", "subject", "body")
	require.True(t, errors.Is(err, shared.ErrValidation))
}

func TestCheckLivenessAgainstListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	m := New(Config{Host: host, Port: port, From: "billing@wyenfos.example"})
	require.NoError(t, m.CheckLiveness(context.Background()))
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "25,750.00", FormatAmount(decimal.NewFromInt(25750)))
	require.Equal(t, "750.50", FormatAmount(decimal.RequireFromString("750.499")))
}
