package rtmp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"

	"streamripper/src/utils"
)

// Server accepts publishers. When a stream key is configured only a publisher
// of that app/name is handed out by Accept.
type Server struct {
	lis        net.Listener
	streamKey  string
	publishers cmap.ConcurrentMap
	sources    chan *Source
	done       chan struct{}
	closeOnce  sync.Once
	log        *logrus.Entry
}

func Listen(addr, streamKey string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		lis:        lis,
		streamKey:  strings.Trim(streamKey, "/"),
		publishers: cmap.New(),
		sources:    make(chan *Source, 1),
		done:       make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component": "rtmp",
			"listen":    lis.Addr().String(),
		}),
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() {
	defer utils.HandlePanic(func(err error) {
		s.log.Error("handle panic, err: ", err)
		s.log.Debug(string(debug.Stack()))
	})
	for {
		tcpConn, err := s.lis.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.Error("listener accept failed, err: ", err)
			continue
		}
		go s.handleConn(newConn(tcpConn))
	}
}

func (s *Server) handleConn(conn *connection) {
	defer utils.HandlePanic(func(err error) {
		conn.log.Error("conn panic, err: ", err)
		conn.Close()
	})
	if err := conn.handshake(); err != nil {
		conn.log.WithError(err).Warn("handshake failed")
		conn.Close()
		return
	}

	for !conn.publishing {
		msg, err := conn.readMsg()
		if err != nil {
			conn.log.WithError(err).Warn("connection closed before publish")
			conn.Close()
			return
		}
		if err = conn.handleMsg(msg); err != nil {
			conn.log.WithError(err).Warn("command failed")
			conn.Close()
			return
		}
	}

	name := conn.getPublisherName()
	if s.streamKey != "" && name != s.streamKey {
		conn.log.WithField("stream", name).Warnf("rejecting publisher, waiting for %s", s.streamKey)
		conn.Close()
		return
	}
	if !s.publishers.SetIfAbsent(name, conn) {
		conn.log.WithField("stream", name).Warn("stream already has a publisher")
		conn.Close()
		return
	}
	conn.onClose = func() {
		s.publishers.Remove(name)
	}

	src := newSource(conn)
	select {
	case s.sources <- src:
	case <-s.done:
		src.Close()
	}
}

// Accept waits for the next publisher.
func (s *Server) Accept(ctx context.Context) (*Source, error) {
	select {
	case src := <-s.sources:
		return src, nil
	case <-s.done:
		return nil, fmt.Errorf("rtmp server closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Publishers is the number of connections currently publishing.
func (s *Server) Publishers() int {
	return s.publishers.Count()
}

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.lis.Close()
	})
	return err
}

// ListenAndAccept listens on the host of an rtmp:// URL and waits for an
// encoder to publish to its path. The returned Source closes the listener
// when closed.
func ListenAndAccept(ctx context.Context, rawURL string) (*Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), DEFAULT_PORT)
	}
	srv, err := Listen(host, u.Path)
	if err != nil {
		return nil, err
	}
	go srv.Serve()
	srv.log.WithField("stream", srv.streamKey).Info("waiting for publisher")

	src, err := srv.Accept(ctx)
	if err != nil {
		srv.Close()
		return nil, err
	}
	src.onClose = func() { srv.Close() }
	return src, nil
}
