package cumulus

import (
	"encoding/binary"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/cumulusdb/cumulus-go/pkg/auth"
	"github.com/cumulusdb/cumulus-go/pkg/codec"
	"github.com/cumulusdb/cumulus-go/pkg/errors"
	"github.com/cumulusdb/cumulus-go/pkg/wire"
)

// protocolVersion is 196608 = (3 << 16) | 0, protocol major 3 minor 0.
const protocolVersion uint32 = 196608

// serverEncodingAliases maps the server's wire encoding names (which
// follow PostgreSQL's own naming, not IANA's) to names htmlindex
// recognizes.
var serverEncodingAliases = map[string]string{
	"UTF8":      "utf-8",
	"LATIN1":    "iso-8859-1",
	"SQL_ASCII": "us-ascii",
	"WIN1252":   "windows-1252",
}

// normalizeClientEncoding resolves a server-reported encoding name to
// htmlindex's canonical form, falling back to the raw value if
// htmlindex does not recognize it (some vendor-specific names have no
// IANA equivalent).
func normalizeClientEncoding(value string) string {
	name := value
	if alias, ok := serverEncodingAliases[strings.ToUpper(value)]; ok {
		name = alias
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return value
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		return value
	}
	return canonical
}

// startup sends StartupMessage and drives the authentication and
// parameter-status exchange to ReadyForQuery (§4.5, §4.6).
func (c *Connection) startup() error {
	if err := c.sendStartupMessage(); err != nil {
		return err
	}

	machine := auth.NewMachine(c.opts.Credentials)

	for {
		msg, err := c.stream.ReadMessage()
		if err != nil {
			return errors.Operationalf("cumulus: read during startup: %v", err).WithCause(err).Err()
		}

		switch msg.Type {
		case wire.BackendAuthentication:
			done, err := machine.HandleAuthenticationRequest(msg.Payload, c)
			if err != nil {
				return err
			}
			if done {
				continue
			}

		case wire.BackendParameterStatus:
			c.handleParameterStatus(msg.Payload)

		case wire.BackendBackendKeyData:
			if len(msg.Payload) >= 8 {
				c.backendPID = int32(binary.BigEndian.Uint32(msg.Payload[0:4]))
				c.backendKey = int32(binary.BigEndian.Uint32(msg.Payload[4:8]))
			}

		case wire.BackendNoticeResponse:
			c.notices.push(NoticeOrNotification{Fields: parseErrorFields(msg.Payload)})

		case wire.BackendErrorResponse:
			return errors.FromWire(parseErrorFields(msg.Payload))

		case wire.BackendReadyForQuery:
			if len(msg.Payload) >= 1 {
				c.txStatus = TransactionStatus(msg.Payload[0])
			}
			return nil

		default:
			// Any other message during startup is ignored; the server
			// only sends the above during the handshake.
		}
	}
}

// SendAuthResponse implements auth.Sender.
func (c *Connection) SendAuthResponse(typeCode byte, payload []byte) error {
	w := wire.NewWriter()
	w.Message(typeCode, func(w *wire.Writer) {
		w.RawBytes(payload)
	})
	return c.stream.Flush(w)
}

func (c *Connection) sendStartupMessage() error {
	body := wire.NewWriter()
	body.Int32(int32(protocolVersion))
	writeParam := func(k, v string) {
		if v == "" {
			return
		}
		body.CString(k)
		body.CString(v)
	}
	writeParam("user", c.opts.User)
	writeParam("database", c.opts.Database)
	writeParam("application_name", c.opts.ApplicationName)
	writeParam("client_protocol_version", protocolLevelParam(c.opts.ClientProtocolVersion))
	writeParam("driver_version", driverVersion)
	writeParam("os_version", osVersion())
	body.Byte(0)

	w := wire.NewWriter()
	w.Int32(int32(4 + len(body.Bytes())))
	w.RawBytes(body.Bytes())
	return c.stream.Flush(w)
}

func protocolLevelParam(level codec.ProtocolLevel) string {
	switch level {
	case codec.ProtocolBinary:
		return "binary"
	case codec.ProtocolExtendedResultMetadata:
		return "extended-result-metadata"
	default:
		return "base"
	}
}

// handleParameterStatus implements §4.6's three special-cased keys and
// otherwise just records the pair.
func (c *Connection) handleParameterStatus(payload []byte) {
	parts := splitNulTerminatedPair(payload)
	if len(parts) != 2 {
		return
	}
	key, value := parts[0], parts[1]
	c.paramStatus.push(key, value)

	switch key {
	case "client_encoding":
		c.clientEncoding = normalizeClientEncoding(value)

	case "server_protocol_version":
		requested := protocolLevelParam(c.opts.ClientProtocolVersion)
		if value != requested {
			c.logger.Connection().Warn("server protocol version mismatch, adopting server value",
				"requested", requested, "server", value)
			c.registry.Rebind(parseProtocolLevel(value))
		}

	case "server_version":
		c.serverVersion = value
		if versionLess(value, "8.2.0") {
			c.rowCountTags = narrowRowCountTags()
		} else {
			c.rowCountTags = defaultRowCountTags()
		}
	}
}

// versionLess reports whether version sorts before threshold when
// compared as dotted numeric components (e.g. "8.2.0" < "9.0.0");
// a non-numeric or missing component is treated as 0, so a build tag
// suffix like "8.2.0 (Raven)" still compares on its numeric prefix.
func versionLess(version, threshold string) bool {
	v := versionComponents(version)
	t := versionComponents(threshold)
	for i := 0; i < len(t); i++ {
		var vi int
		if i < len(v) {
			vi = v[i]
		}
		if vi != t[i] {
			return vi < t[i]
		}
	}
	return false
}

func versionComponents(s string) []int {
	numeric := strings.SplitN(strings.TrimSpace(s), " ", 2)[0]
	parts := strings.Split(numeric, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out = append(out, n)
	}
	return out
}

func parseProtocolLevel(s string) codec.ProtocolLevel {
	switch s {
	case "binary":
		return codec.ProtocolBinary
	case "extended-result-metadata":
		return codec.ProtocolExtendedResultMetadata
	default:
		return codec.ProtocolBase
	}
}

func splitNulTerminatedPair(buf []byte) []string {
	var out []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			out = append(out, string(buf[start:i]))
			start = i + 1
			if len(out) == 2 {
				break
			}
		}
	}
	return out
}

// parseErrorFields decodes an ErrorResponse/NoticeResponse field
// sequence: a stream of (byte code, C-string) pairs terminated by a
// zero byte.
func parseErrorFields(buf []byte) map[byte]string {
	fields := make(map[byte]string)
	i := 0
	for i < len(buf) && buf[i] != 0 {
		code := buf[i]
		i++
		start := i
		for i < len(buf) && buf[i] != 0 {
			i++
		}
		fields[code] = string(buf[start:i])
		i++
	}
	return fields
}

const driverVersion = "1.0.0"

// DriverVersion returns the driver_version string sent in every
// StartupMessage.
func DriverVersion() string {
	return driverVersion
}
