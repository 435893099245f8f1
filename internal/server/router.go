package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

// MaxConnections bounds the number of concurrently served clients.
const MaxConnections = 100

type Router struct {
	store sdk.CelerixStore
	cert  *tls.Certificate

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

func NewRouter(s sdk.CelerixStore) *Router {
	return &Router{store: s}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound listener address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		listener.Close()
		return net.ErrClosed
	}
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	semaphore := make(chan struct{}, MaxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}

		// Light traffic only; drop idle clients.
		conn.SetDeadline(time.Now().Add(5 * time.Minute))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// Stop closes the listener, making Listen return.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

// HandleConnection serves one client until it quits, times out or disconnects.
func (r *Router) HandleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		command := strings.ToUpper(parts[0])
		if command == "QUIT" {
			return
		}
		r.dispatch(conn, command, parts, line)
	}
}

func (r *Router) dispatch(conn net.Conn, command string, parts []string, line string) {
	switch command {
	case "GET":
		if len(parts) < 4 {
			return
		}
		val, err := r.store.Get(parts[1], parts[2], parts[3])
		reply(conn, val, err)

	case "SET":
		if len(parts) < 5 {
			return
		}
		// The value is the rest of the line verbatim; JSON strings may hold runs of spaces.
		valueStr := restAfter(line, 4)
		var val any
		if err := json.Unmarshal([]byte(valueStr), &val); err != nil {
			fmt.Fprintln(conn, "ERR invalid json value")
			return
		}
		if err := r.store.Set(parts[1], parts[2], parts[3], val); err != nil {
			if !errors.Is(err, sdk.ErrQuotaExceeded) {
				log.Printf("SET %s/%s/%s failed: %v", parts[1], parts[2], parts[3], err)
			}
			fmt.Fprintln(conn, "ERR", err)
			return
		}
		fmt.Fprintln(conn, "OK")

	case "DEL":
		if len(parts) < 4 {
			return
		}
		replyStatus(conn, r.store.Delete(parts[1], parts[2], parts[3]))

	case "LIST_PERSONAS":
		list, err := r.store.GetPersonas()
		reply(conn, list, err)

	case "LIST_APPS":
		if len(parts) < 2 {
			return
		}
		list, err := r.store.GetApps(parts[1])
		reply(conn, list, err)

	case "DUMP":
		if len(parts) < 3 {
			return
		}
		data, err := r.store.GetAppStore(parts[1], parts[2])
		reply(conn, data, err)

	case "DUMP_APP":
		if len(parts) < 2 {
			return
		}
		data, err := r.store.DumpApp(parts[1])
		reply(conn, data, err)

	case "GET_GLOBAL":
		if len(parts) < 3 {
			return
		}
		val, personaID, err := r.store.GetGlobal(parts[1], parts[2])
		reply(conn, map[string]any{"persona": personaID, "value": val}, err)

	case "MOVE":
		if len(parts) < 5 {
			return
		}
		// MOVE src dst app key
		replyStatus(conn, r.store.Move(parts[1], parts[2], parts[3], parts[4]))

	case "PING":
		fmt.Fprintln(conn, "PONG")
	}
}

func reply(conn net.Conn, v any, err error) {
	if err != nil {
		fmt.Fprintln(conn, "ERR", err)
		return
	}
	res, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(conn, "ERR internal error")
		return
	}
	fmt.Fprintln(conn, "OK", string(res))
}

func replyStatus(conn net.Conn, err error) {
	if err != nil {
		fmt.Fprintln(conn, "ERR", err)
		return
	}
	fmt.Fprintln(conn, "OK")
}

// restAfter returns line with its first n whitespace-separated fields removed.
func restAfter(line string, n int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	return rest
}
