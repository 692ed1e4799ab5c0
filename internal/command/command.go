// Package command implements tallierd's optional command-inspection TCP
// interface, restored from original_source/tallier.py's CommandService and
// CommandChannel (asyncore/asynchat based there; here a goroutine-per-
// connection bufio.Scanner, grounded on the teacher's use of
// bufio.NewScanner(conn) in plugins/inputs/statsd/statsd.go's handler).
package command

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Handler answers one command line (already trimmed of its \r\n
// terminator) with the response body lines to send back, excluding the
// dot-stuffing and terminator applied by Service.
type Handler func(line string) []string

// Service is a line-oriented TCP command interface. Commands are
// case-insensitive; unknown commands get "ERROR: invalid command".
// Response bodies are dot-stuffed and terminated by a line containing only
// ".", matching tallier.py's run_command framing.
type Service struct {
	listener *net.TCPListener
	handler  Handler
	log      *logrus.Entry
}

// New binds the command service to iface:port. It does not start serving
// connections until Serve is called.
func New(iface string, port int, handler Handler, log *logrus.Entry) (*Service, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", iface, port))
	if err != nil {
		return nil, fmt.Errorf("resolving command service address: %w", err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding command service: %w", err)
	}
	return &Service{listener: ln, handler: handler, log: log.WithField("component", "command_service")}, nil
}

// Serve accepts connections until ctx is cancelled, handling each on its
// own goroutine.
func (s *Service) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.log.WithField("addr", s.listener.Addr()).Info("command service listening")
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.WithError(err).Warn("error accepting command connection")
				continue
			}
		}
		id := uuid.NewString()
		go s.handle(ctx, conn, id)
	}
}

func (s *Service) handle(ctx context.Context, conn *net.TCPConn, id string) {
	defer conn.Close()
	log := s.log.WithField("conn", id)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Split(scanCRLF)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		for _, resp := range s.respond(line) {
			if _, err := fmt.Fprintf(conn, "%s\r\n", resp); err != nil {
				log.WithError(err).Debug("error writing command response")
				return
			}
		}
	}
}

// respond renders the dot-stuffed, dot-terminated response body for one
// command line.
func (s *Service) respond(line string) []string {
	if len(strings.Fields(line)) == 0 {
		return []string{"ERROR: invalid command"}
	}

	body := s.handler(line)
	if body == nil {
		return []string{"ERROR: invalid command"}
	}

	out := make([]string, 0, len(body)+1)
	for _, l := range body {
		if strings.HasPrefix(l, ".") {
			l = "." + l
		}
		out = append(out, l)
	}
	out = append(out, ".")
	return out
}

// scanCRLF is a bufio.SplitFunc that splits on "\r\n", matching
// asynchat's set_terminator('\r\n') in the reference implementation.
func scanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := strings.Index(string(data), "\r\n"); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
