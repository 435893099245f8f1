// Package sdk provides the client-side library for the pond interaction store.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

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
)

// Client is a remote client for the store daemon.
// It implements the CelerixStore interface.
type Client struct {
	addr   string
	useTLS bool
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

// Connect dials the store daemon at addr, over TLS when useTLS is set.
func Connect(addr string, useTLS bool) (*Client, error) {
	c := &Client{addr: addr, useTLS: useTLS}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.useTLS {
		config := &tls.Config{
			InsecureSkipVerify: true, // The daemon uses a self-signed certificate
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	} else {
		conn, err = dialer.Dial("tcp", c.addr)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// sendAndReceive writes one command line and reads one reply line,
// retrying up to 3 times with backoff on transport failures.
func (c *Client) sendAndReceive(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	var resp string

	for i := 0; i < 3; i++ {
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(30 * time.Second))

		_, err = fmt.Fprint(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				if strings.HasPrefix(resp, "ERR") {
					return "", remoteError(strings.TrimSpace(strings.TrimPrefix(resp, "ERR")))
				}
				return resp, nil
			}
		}

		log.Printf("[pond sdk] attempt %d failed: %v, reconnecting", i+1, err)
		if closeErr := c.reconnect(); closeErr != nil {
			log.Printf("[pond sdk] reconnect attempt failed: %v", closeErr)
		}

		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after 3 attempts. last error: %w", err)
}

// remoteError maps a daemon error message back onto the shared sentinels.
func remoteError(msg string) error {
	for _, sentinel := range []error{ErrQuotaExceeded, ErrKeyNotFound, ErrAppNotFound, ErrPersonaNotFound} {
		if msg == sentinel.Error() {
			return sentinel
		}
	}
	return errors.New(msg)
}

func decodeOK(resp string, out any) error {
	return json.Unmarshal([]byte(strings.TrimPrefix(resp, "OK ")), out)
}

func (c *Client) Get(personaID, appID, key string) (any, error) {
	resp, err := c.sendAndReceive(fmt.Sprintf("GET %s %s %s", personaID, appID, key))
	if err != nil {
		return nil, err
	}
	var val any
	err = decodeOK(resp, &val)
	return val, err
}

func (c *Client) Set(personaID, appID, key string, val any) error {
	jsonData, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	_, err = c.sendAndReceive(fmt.Sprintf("SET %s %s %s %s", personaID, appID, key, string(jsonData)))
	return err
}

func (c *Client) Delete(personaID, appID, key string) error {
	_, err := c.sendAndReceive(fmt.Sprintf("DEL %s %s %s", personaID, appID, key))
	return err
}

func (c *Client) GetPersonas() ([]string, error) {
	resp, err := c.sendAndReceive("LIST_PERSONAS")
	if err != nil {
		return nil, err
	}
	var list []string
	err = decodeOK(resp, &list)
	return list, err
}

func (c *Client) GetApps(personaID string) ([]string, error) {
	resp, err := c.sendAndReceive(fmt.Sprintf("LIST_APPS %s", personaID))
	if err != nil {
		return nil, err
	}
	var list []string
	err = decodeOK(resp, &list)
	return list, err
}

func (c *Client) GetAppStore(personaID, appID string) (map[string]any, error) {
	resp, err := c.sendAndReceive(fmt.Sprintf("DUMP %s %s", personaID, appID))
	if err != nil {
		return nil, err
	}
	var store map[string]any
	err = decodeOK(resp, &store)
	return store, err
}

func (c *Client) DumpApp(appID string) (map[string]map[string]any, error) {
	resp, err := c.sendAndReceive(fmt.Sprintf("DUMP_APP %s", appID))
	if err != nil {
		return nil, err
	}
	var store map[string]map[string]any
	err = decodeOK(resp, &store)
	return store, err
}

func (c *Client) GetGlobal(appID, key string) (any, string, error) {
	resp, err := c.sendAndReceive(fmt.Sprintf("GET_GLOBAL %s %s", appID, key))
	if err != nil {
		return nil, "", err
	}
	var out struct {
		Persona string `json:"persona"`
		Value   any    `json:"value"`
	}
	err = decodeOK(resp, &out)
	return out.Value, out.Persona, err
}

func (c *Client) Move(srcPersona, dstPersona, appID, key string) error {
	_, err := c.sendAndReceive(fmt.Sprintf("MOVE %s %s %s %s", srcPersona, dstPersona, appID, key))
	return err
}

// Ping checks that the daemon answers.
func (c *Client) Ping() error {
	resp, err := c.sendAndReceive("PING")
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", resp)
	}
	return nil
}

// App returns a scoped client for a specific persona and application.
func (c *Client) App(personaID, appID string) AppScope {
	return Scope(c, personaID, appID)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// --- Generics Support ---

// Get retrieves a type-safe value using Go generics.
// It handles JSON unmarshaling into the target type automatically.
func Get[T any](s KVReader, personaID, appID, key string) (T, error) {
	var target T
	val, err := s.Get(personaID, appID, key)
	if err != nil {
		return target, err
	}

	// Embedded stores hand back the original value.
	if v, ok := val.(T); ok {
		return v, nil
	}

	// Remote values arrive as generic JSON, so round-trip them into T.
	bytes, err := json.Marshal(val)
	if err != nil {
		return target, err
	}
	err = json.Unmarshal(bytes, &target)
	return target, err
}

// Set stores a type-safe value using Go generics.
func Set[T any](s KVWriter, personaID, appID, key string, val T) error {
	return s.Set(personaID, appID, key, val)
}
