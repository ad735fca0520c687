package cumulus

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/cumulusdb/cumulus-go/pkg/auth"
	"github.com/cumulusdb/cumulus-go/pkg/codec"
	"github.com/cumulusdb/cumulus-go/pkg/errors"
	"github.com/cumulusdb/cumulus-go/pkg/log"
	"github.com/cumulusdb/cumulus-go/pkg/prepcache"
	"github.com/cumulusdb/cumulus-go/pkg/wire"
)

// fifoCapacity bounds the notices, notifications, and parameter-status
// queues at 100 entries, evicting oldest-first (§3, §8).
const fifoCapacity = 100

// maxPreparedStatementsDefault mirrors the server-side default the
// driver assumes absent an explicit override.
const maxPreparedStatementsDefault = 100

// NoticeOrNotification is one entry of the bounded notices/notifications
// FIFOs: the raw field map from a NoticeResponse or NotificationResponse.
type NoticeOrNotification struct {
	Fields map[byte]string
}

// ring is a bounded FIFO that evicts its oldest entry once full.
type ring struct {
	mu    sync.Mutex
	items []NoticeOrNotification
	cap   int
}

func newRing(capacity int) *ring {
	return &ring{cap: capacity}
}

func (r *ring) push(item NoticeOrNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

func (r *ring) drain() []NoticeOrNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	return out
}

// parameterStatusRing is the same bound applied to ParameterStatus
// key/value pairs in arrival order.
type parameterStatusRing struct {
	mu    sync.Mutex
	pairs []paramPair
	cap   int
}

type paramPair struct {
	Key, Value string
}

func newParameterStatusRing(capacity int) *parameterStatusRing {
	return &parameterStatusRing{cap: capacity}
}

func (p *parameterStatusRing) push(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs = append(p.pairs, paramPair{key, value})
	if len(p.pairs) > p.cap {
		p.pairs = p.pairs[len(p.pairs)-p.cap:]
	}
}

// TransactionStatus mirrors the last ReadyForQuery status byte.
type TransactionStatus byte

const (
	TxIdle            TransactionStatus = 'I'
	TxInTransaction   TransactionStatus = 'T'
	TxFailed          TransactionStatus = 'E'
)

// Options configures a Connection at Open time.
type Options struct {
	Host     string
	Port     int
	User     string
	Database string

	Credentials auth.Credentials

	SSLMode    wire.SSLMode
	ServerName string

	ApplicationName string
	ClientProtocolVersion codec.ProtocolLevel

	ConnectTimeout time.Duration
	ReadWriteTimeout time.Duration

	MaxPreparedStatements int

	Logger *log.Logger
}

// Connection owns a bidirectional byte stream, the negotiated protocol
// state, server parameter reports, a backend key for cancellation, the
// bounded notice/notification/parameter-status FIFOs, the
// prepared-statement cache, the codec registry, and the transaction
// state flag (§3).
type Connection struct {
	opts   Options
	logger *log.Logger

	stream *wire.Stream
	closed bool

	registry *codec.Registry

	backendPID int32
	backendKey int32

	notices       *ring
	notifications *ring
	paramStatus   *parameterStatusRing

	clientEncoding string

	txStatus TransactionStatus

	cache *prepcache.Cache

	pid int

	pendingErr error

	// serverVersion and rowCountTags are set from the server_version
	// ParameterStatus; rowCountTags narrows for servers too old to
	// report counts for every verb (§4.6, §4.7).
	serverVersion string
	rowCountTags  map[string]bool
}

// Option mutates Options at Open time, mirroring the teacher's
// functional-options pattern.
type Option func(*Options)

// WithSSLMode sets the TLS negotiation mode.
func WithSSLMode(mode wire.SSLMode) Option {
	return func(o *Options) { o.SSLMode = mode }
}

// WithCredentials sets the credentials available to the auth state
// machine.
func WithCredentials(creds auth.Credentials) Option {
	return func(o *Options) { o.Credentials = creds }
}

// WithApplicationName sets the application_name startup parameter.
func WithApplicationName(name string) Option {
	return func(o *Options) { o.ApplicationName = name }
}

// WithMaxPreparedStatements overrides the prepared-statement cache
// capacity.
func WithMaxPreparedStatements(n int) Option {
	return func(o *Options) { o.MaxPreparedStatements = n }
}

// WithLogger attaches a structured logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithConnectTimeout bounds the initial TCP dial and TLS handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithReadWriteTimeout applies a socket-level deadline to every
// subsequent read/write (§5).
func WithReadWriteTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadWriteTimeout = d }
}

// Open dials host:port, negotiates TLS per sslmode, authenticates, and
// runs the startup sequence to ReadyForQuery.
func Open(host string, port int, user, database string, opts ...Option) (*Connection, error) {
	options := Options{
		Host:                  host,
		Port:                  port,
		User:                  user,
		Database:              database,
		ClientProtocolVersion: codec.ProtocolBinary,
		MaxPreparedStatements: maxPreparedStatementsDefault,
		Logger:                log.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	c := &Connection{
		opts:          options,
		logger:        options.Logger,
		notices:       newRing(fifoCapacity),
		notifications: newRing(fifoCapacity),
		paramStatus:   newParameterStatusRing(fifoCapacity),
		txStatus:      TxIdle,
		pid:           os.Getpid(),
		rowCountTags:  defaultRowCountTags(),
	}

	addr := net.JoinHostPort(host, itoaPort(port))
	dialer := net.Dialer{Timeout: options.ConnectTimeout}
	raw, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Operationalf("cumulus: dial %s: %v", addr, err).WithCause(err).Err()
	}

	tlsConn, err := wire.NegotiateTLS(raw, options.SSLMode, options.ServerName, nil)
	if err != nil {
		raw.Close()
		return nil, err
	}

	c.stream = wire.NewStream(tlsConn)
	c.stream.SetDeadline(options.ReadWriteTimeout)
	c.registry = codec.NewRegistry(options.ClientProtocolVersion)
	c.cache = prepcache.New(options.MaxPreparedStatements, c.evictStatement)

	if err := c.startup(); err != nil {
		c.stream.Conn().Close()
		c.closed = true
		return nil, err
	}

	return c, nil
}

// Close sends Terminate, best-effort closes the byte stream, then
// closes the socket. Post-close operations fail (§5).
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	w := wire.NewWriter()
	w.Message(wire.FrontendTerminate, func(w *wire.Writer) {})
	_ = c.stream.Flush(w)
	return c.stream.Conn().Close()
}

// TransactionStatus reports the last ReadyForQuery status byte.
func (c *Connection) TransactionStatus() TransactionStatus {
	return c.txStatus
}

// Autocommit reports whether the connection is currently outside an
// explicit transaction block.
func (c *Connection) Autocommit() bool {
	return c.txStatus == TxIdle
}

// SetAutocommit toggles autocommit by issuing `begin`/`commit` as
// needed; used by the TPC coordinator to force autocommit for the
// duration of a two-phase verb (§4.9).
func (c *Connection) SetAutocommit(on bool) error {
	if on == c.Autocommit() {
		return nil
	}
	if on {
		return c.ExecuteSimple("commit")
	}
	return c.ExecuteSimple("begin")
}

// DrainNotices returns and clears the buffered NoticeResponse entries.
func (c *Connection) DrainNotices() []NoticeOrNotification {
	return c.notices.drain()
}

// DrainNotifications returns and clears the buffered
// NotificationResponse entries.
func (c *Connection) DrainNotifications() []NoticeOrNotification {
	return c.notifications.drain()
}

// ClientEncoding returns the connection's current client_encoding, as
// last reported via ParameterStatus (§9's resolved open question: the
// value is stored on the connection rather than discarded locally).
func (c *Connection) ClientEncoding() string {
	return c.clientEncoding
}

func (c *Connection) checkOpen() error {
	if c.closed {
		return errors.Interfacef("cumulus: connection is closed").Err()
	}
	return nil
}

func (c *Connection) evictStatement(paramstyle string, pid int, name string) {
	w := wire.NewWriter()
	w.Message(wire.FrontendClose, func(w *wire.Writer) {
		w.Byte(wire.DescribeStatement)
		w.CString(name)
	})
	w.Message(wire.FrontendSync, func(w *wire.Writer) {})
	if err := c.stream.Flush(w); err != nil {
		c.logger.Cache().Warn("failed to close evicted statement", "name", name, "error", err.Error())
		return
	}
	c.drainToReadyForQuery()
}

func itoaPort(port int) string {
	if port == 0 {
		return "5439"
	}
	buf := [6]byte{}
	i := len(buf)
	for port > 0 {
		i--
		buf[i] = byte('0' + port%10)
		port /= 10
	}
	return string(buf[i:])
}
