package command

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func startTestService(t *testing.T, handler Handler) string {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	log.Logger.SetOutput(strings.NewReader(""))

	svc, err := New("127.0.0.1", 0, handler, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Serve(ctx)

	return svc.listener.Addr().String()
}

func sendCommand(t *testing.T, addr, line string) []string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	scanner := bufio.NewScanner(conn)
	var lines []string
	for scanner.Scan() {
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "." {
			break
		}
		lines = append(lines, text)
	}
	return lines
}

func TestServiceEchoesHandlerResponse(t *testing.T) {
	addr := startTestService(t, func(line string) []string {
		return []string{"ok: " + line}
	})

	got := sendCommand(t, addr, "HELP")
	require.Equal(t, []string{"ok: HELP"}, got)
}

func TestServiceReturnsErrorOnNilHandlerResponse(t *testing.T) {
	addr := startTestService(t, func(line string) []string { return nil })

	got := sendCommand(t, addr, "BOGUS")
	require.Equal(t, []string{"ERROR: invalid command"}, got)
}

func TestServiceReturnsErrorOnBlankLine(t *testing.T) {
	addr := startTestService(t, func(line string) []string {
		return []string{"should not be reached"}
	})

	got := sendCommand(t, addr, "   ")
	require.Equal(t, []string{"ERROR: invalid command"}, got)
}

func TestServiceDotStuffsLeadingDotInBody(t *testing.T) {
	addr := startTestService(t, func(line string) []string {
		return []string{".leading dot", "normal"}
	})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("STATS\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	require.Equal(t, "..leading dot", strings.TrimSuffix(scanner.Text(), "\r"))
	require.True(t, scanner.Scan())
	require.Equal(t, "normal", strings.TrimSuffix(scanner.Text(), "\r"))
	require.True(t, scanner.Scan())
	require.Equal(t, ".", strings.TrimSuffix(scanner.Text(), "\r"))
}

func TestScanCRLFSplitsOnTerminator(t *testing.T) {
	data := []byte("HELP\r\nSTATS\r\n")
	advance, token, err := scanCRLF(data, false)
	require.NoError(t, err)
	require.Equal(t, "HELP", string(token))
	require.Equal(t, 6, advance)
}
