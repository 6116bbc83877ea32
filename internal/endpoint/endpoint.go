// Package endpoint implements the connection-accepting half of the engine
// (spec component E): a thread-per-connection blocking I/O model with a
// bounded worker pool, a connection-count latch, and an async sweeper that
// force-closes connections that have gone idle past their deadline.
package endpoint

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/andycostintoma/bioengine/internal/log"
	"github.com/andycostintoma/bioengine/internal/metrics"
	"github.com/andycostintoma/bioengine/internal/processor"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Config bounds the endpoint's concurrency and accounting.
type Config struct {
	Address           string
	AcceptorThreads   int
	MaxConnections    int
	MaxWorkerThreads  int
	ConnectionTimeout time.Duration
}

// trackedConn pairs a connection with the deadline the sweeper enforces
// independent of the processor's own read deadlines — a backstop for
// connections stuck in a handler that never returns.
type trackedConn struct {
	conn     net.Conn
	deadline time.Time
}

// Endpoint owns the listener, the acceptor goroutines, and the bounded
// worker pool that runs one Processor per accepted connection.
type Endpoint struct {
	cfg       Config
	handler   processor.Handler
	limits    processor.Limits
	listener  net.Listener
	workerSem chan struct{}
	latch     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]*trackedConn
}

// New builds an Endpoint that will dispatch accepted connections to
// handler once Start is called.
func New(cfg Config, handler processor.Handler, limits processor.Limits) *Endpoint {
	if cfg.AcceptorThreads <= 0 {
		cfg.AcceptorThreads = 1
	}
	if cfg.MaxWorkerThreads <= 0 {
		cfg.MaxWorkerThreads = 200
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = cfg.MaxWorkerThreads
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Endpoint{
		cfg:       cfg,
		handler:   handler,
		limits:    limits,
		workerSem: make(chan struct{}, cfg.MaxWorkerThreads),
		latch:     make(chan struct{}, cfg.MaxConnections),
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[net.Conn]*trackedConn),
	}
}

// Start binds the listener and launches the acceptor threads and the
// async-timeout sweeper. It returns once the listener is bound; acceptance
// and processing continue in background goroutines until Stop is called.
func (e *Endpoint) Start() error {
	l, err := net.Listen("tcp", e.cfg.Address)
	if err != nil {
		return errors.Wrapf(err, "bind listener on %s", e.cfg.Address)
	}
	e.listener = l
	log.Infof("endpoint listening on %s", e.cfg.Address)

	for i := 0; i < e.cfg.AcceptorThreads; i++ {
		e.wg.Add(1)
		go e.acceptLoop()
	}
	e.wg.Add(1)
	go e.sweepLoop()
	return nil
}

// Stop closes the listener and every connection still tracked, then waits
// for the acceptor, sweeper and worker goroutines to exit. Worker goroutines
// are not force-terminated: closing their connections makes them return, so
// Stop blocks until every running handler has returned.
func (e *Endpoint) Stop() error {
	e.cancel()
	var result *multierror.Error
	if e.listener != nil {
		if err := e.listener.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	e.mu.Lock()
	for conn := range e.conns {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	e.mu.Unlock()
	e.wg.Wait()
	return result.ErrorOrNil()
}

func (e *Endpoint) acceptLoop() {
	defer e.wg.Done()
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.ctx.Done():
				return
			default:
				log.Warnf("accept error: %v", err)
				continue
			}
		}

		select {
		case e.latch <- struct{}{}:
			metrics.AcceptedConnections.Inc()
		default:
			metrics.RejectedConnections.Inc()
			conn.Close()
			continue
		}

		e.track(conn)

		select {
		case e.workerSem <- struct{}{}:
			e.wg.Add(1)
			go e.serve(conn)
		case <-e.ctx.Done():
			e.untrack(conn)
			<-e.latch
			conn.Close()
			return
		}
	}
}

func (e *Endpoint) serve(conn net.Conn) {
	defer e.wg.Done()
	defer func() { <-e.workerSem }()
	defer func() { <-e.latch }()
	defer e.untrack(conn)

	metrics.ActiveConnections.Inc()
	metrics.WorkerPoolInUse.Inc()
	defer metrics.ActiveConnections.Dec()
	defer metrics.WorkerPoolInUse.Dec()

	p := processor.New(e.handler, e.limits)
	if err := p.Serve(conn); err != nil {
		log.Debugf("connection %s closed: %v", conn.RemoteAddr(), err)
	}
}

func (e *Endpoint) track(conn net.Conn) {
	e.mu.Lock()
	e.conns[conn] = &trackedConn{conn: conn, deadline: time.Now().Add(e.sweepHorizon())}
	e.mu.Unlock()
}

func (e *Endpoint) untrack(conn net.Conn) {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
}

func (e *Endpoint) sweepHorizon() time.Duration {
	if e.cfg.ConnectionTimeout > 0 {
		// The sweeper's backstop allows a generous multiple of the
		// per-request timeout, since a busy keep-alive connection
		// legitimately resets its own read deadline every request.
		return e.cfg.ConnectionTimeout * 10
	}
	return 10 * time.Minute
}

// sweepLoop force-closes connections that have sat tracked past their
// sweep horizon — a backstop for a handler goroutine that never returns
// and so never lets Processor's own read-deadline logic reclaim the
// connection.
func (e *Endpoint) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			var stale []net.Conn
			e.mu.Lock()
			for conn, t := range e.conns {
				if now.After(t.deadline) {
					stale = append(stale, conn)
				}
			}
			e.mu.Unlock()
			for _, conn := range stale {
				metrics.AsyncTimeoutSweeps.Inc()
				conn.Close()
			}

		case <-e.ctx.Done():
			return
		}
	}
}
