// Package link opens the byte stream instructions arrive on and replies
// leave by: stdio, a serial port or a WebSocket.
package link

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// PasswordEnv is checked before prompting for a WebSocket password.
const PasswordEnv = "LIGHTTUNNEL_PASSWORD"

// ErrConnectionClosed is returned when reading from a failed WebSocket.
var ErrConnectionClosed = errors.New("link: websocket connection closed")

// Conn is a bidirectional host link.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Options select a transport. URL wins over Port; neither means stdio.
type Options struct {
	Port string
	Baud int

	URL       string
	Username  string
	SkipTLS   bool
	Binary    bool // send WebSocket binary messages (CBOR replies)
	Password  func() (string, error)
	Handshake time.Duration
}

// Open opens the transport described by o and returns it with a
// human-readable description.
func Open(o Options) (Conn, string, error) {
	switch {
	case o.URL != "":
		password := ""
		if o.Username != "" {
			get := o.Password
			if get == nil {
				get = GetPassword
			}
			var err error
			if password, err = get(); err != nil {
				return nil, "", err
			}
		}
		c, err := OpenWebSocket(o.URL, o.Username, password, o.SkipTLS, o.Binary, o.Handshake)
		if err != nil {
			return nil, "", err
		}
		return c, "websocket " + o.URL, nil
	case o.Port != "":
		baud := o.Baud
		if baud <= 0 {
			baud = 115200
		}
		c, err := OpenSerial(o.Port, baud)
		if err != nil {
			return nil, "", err
		}
		return c, fmt.Sprintf("serial %s @ %d baud", o.Port, baud), nil
	default:
		return Stdio(), "stdio", nil
	}
}

type stdio struct {
	in  io.Reader
	out io.Writer
}

// Stdio returns a Conn over the process's stdin and stdout. Close is a no-op.
func Stdio() Conn { return &stdio{in: os.Stdin, out: os.Stdout} }

func (s *stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stdio) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *stdio) Close() error                { return nil }

// SerialConn wraps a serial port.
type SerialConn struct {
	port serial.Port
}

func (s *SerialConn) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialConn) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialConn) Close() error                { return s.port.Close() }

// OpenSerial opens portName at 8N1.
func OpenSerial(portName string, baud int) (*SerialConn, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("link: open serial port %s: %w", portName, err)
	}
	return &SerialConn{port: port}, nil
}

// WSConn exposes a WebSocket as a byte stream. Each received message is
// delivered in order; text messages are terminated with a newline so the
// line reader sees one instruction per message.
type WSConn struct {
	conn    *websocket.Conn
	msgType int
	buf     []byte
	off     int
	closed  bool
}

// NewWSConn wraps an established WebSocket.
func NewWSConn(c *websocket.Conn, binary bool) *WSConn {
	t := websocket.TextMessage
	if binary {
		t = websocket.BinaryMessage
	}
	return &WSConn{conn: c, msgType: t}
}

func (w *WSConn) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	if w.off < len(w.buf) {
		n := copy(p, w.buf[w.off:])
		w.off += n
		return n, nil
	}
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return 0, io.EOF
			}
			return 0, err
		}
		if len(data) == 0 {
			continue
		}
		if mt == websocket.TextMessage && data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		w.buf, w.off = data, 0
		n := copy(p, w.buf)
		w.off = n
		return n, nil
	}
}

// Write sends p as one message.
func (w *WSConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(w.msgType, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WSConn) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.conn.Close()
}

// OpenWebSocket dials wsURL with optional HTTP Basic auth.
func OpenWebSocket(wsURL, username, password string, skipTLS, binary bool, handshake time.Duration) (*WSConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("link: invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("link: unsupported URL scheme %q (use ws:// or wss://)", u.Scheme)
	}
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshake}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipTLS}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+cred)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshake+5*time.Second)
	defer cancel()
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("link: websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("link: websocket dial failed: %w", err)
	}
	return NewWSConn(conn, binary), nil
}

// GetPassword reads PasswordEnv or prompts on the terminal without echo.
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		line, rerr := bufio.NewReader(os.Stdin).ReadString('\n')
		if rerr != nil {
			return "", fmt.Errorf("link: read password: %w", rerr)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(line), nil
	}
	fmt.Fprintln(os.Stderr)
	return string(pw), nil
}
