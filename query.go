package cumulus

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/cumulusdb/cumulus-go/pkg/codec"
	"github.com/cumulusdb/cumulus-go/pkg/cursor"
	"github.com/cumulusdb/cumulus-go/pkg/errors"
	"github.com/cumulusdb/cumulus-go/pkg/paramstyle"
	"github.com/cumulusdb/cumulus-go/pkg/prepcache"
	"github.com/cumulusdb/cumulus-go/pkg/wire"
)

// copyChunkSize bounds each CopyData frame sent for a caller-supplied
// COPY input stream (§4.7).
const copyChunkSize = 8192

// defaultRowCountTags carries a command tag's row count for these
// verbs, plus SELECT as a vendor extension where the count is derived
// from buffered rows instead of the tag itself (§4.7). Servers older
// than 8.2 report counts for a narrower set; narrowRowCountTags
// reflects that once server_version is known (§4.6).
func defaultRowCountTags() map[string]bool {
	return map[string]bool{
		"INSERT": true, "DELETE": true, "UPDATE": true, "MOVE": true, "FETCH": true, "COPY": true,
	}
}

// narrowRowCountTags returns the command tags servers older than 8.2
// report counts for; FETCH and COPY counts were not yet wired through
// the server's command-complete tag at that vintage.
func narrowRowCountTags() map[string]bool {
	return map[string]bool{
		"INSERT": true, "DELETE": true, "UPDATE": true, "MOVE": true,
	}
}

// Execute rewrites sql under style, binds args, consults the
// prepared-statement cache, and drives the extended-query protocol to
// completion, populating cur (§4.7).
func (c *Connection) Execute(cur *cursor.Cursor, style paramstyle.Style, sql string, positional []interface{}, named map[string]interface{}) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.pendingErr != nil {
		err := c.pendingErr
		c.pendingErr = nil
		return err
	}
	if strings.TrimSpace(sql) == "" {
		return errors.Programmingf("cumulus: empty query").Err()
	}

	cur.Reset()

	rewritten, err := paramstyle.Rewrite(style, sql)
	if err != nil {
		return err
	}
	args, err := rewritten.Materializer(named, positional)
	if err != nil {
		return err
	}

	params := make([]codec.Param, len(args))
	for i, v := range args {
		p, err := c.registry.Inspect(v)
		if err != nil {
			return err
		}
		params[i] = p
	}

	oids := make([]codec.OID, len(params))
	for i, p := range params {
		oids[i] = p.OID
	}
	key := prepcache.Key{SQL: rewritten.Query, Signature: prepcache.SignatureOf(oids)}

	entry, ok := c.cache.Lookup(style.String(), c.pid, key)
	if !ok {
		entry, err = c.parseAndDescribe(rewritten.Query, oids)
		if err != nil {
			return err
		}
		c.cache.Insert(style.String(), c.pid, key, entry)
	}

	cur.Statement = entry
	return c.bindExecuteSync(cur, entry, params)
}

// ExecuteSimple runs sql with no parameters and discards the result,
// used by the TPC coordinator and autocommit toggling.
func (c *Connection) ExecuteSimple(sql string) error {
	cur := cursor.New("qmark")
	return c.Execute(cur, paramstyle.Qmark, sql, nil, nil)
}

// parseAndDescribe allocates a new statement name, sends
// Parse+Describe+Sync, and drains to ReadyForQuery, populating the
// cache entry's row description and precomputed Bind fragments.
func (c *Connection) parseAndDescribe(sql string, oids []codec.OID) (*prepcache.Entry, error) {
	name := c.cache.NextStatementName(c.pid)

	w := wire.NewWriter()
	w.Message(wire.FrontendParse, func(w *wire.Writer) {
		w.CString(name)
		w.CString(sql)
		w.Int16(int16(len(oids)))
		for _, oid := range oids {
			wireOID := oid
			if wireOID == 0 {
				wireOID = codec.OIDUnknown
			}
			w.Int32(int32(wireOID))
		}
	})
	w.Message(wire.FrontendDescribe, func(w *wire.Writer) {
		w.Byte(wire.DescribeStatement)
		w.CString(name)
	})
	w.Message(wire.FrontendSync, func(w *wire.Writer) {})
	if err := c.stream.Flush(w); err != nil {
		c.closed = true
		return nil, errors.Operationalf("cumulus: write Parse/Describe: %v", err).WithCause(err).Err()
	}

	entry := &prepcache.Entry{Name: name, ParamOIDs: oids}
	var deferredErr error

	for {
		msg, err := c.stream.ReadMessage()
		if err != nil {
			c.closed = true
			return nil, errors.Operationalf("cumulus: read during Parse/Describe: %v", err).WithCause(err).Err()
		}
		switch msg.Type {
		case wire.BackendRowDescription:
			entry.RowDescription = parseRowDescription(msg.Payload, c.registry)
		case wire.BackendParameterDesc:
			// Parameter OIDs are already known from the inspector; the
			// server's own ParameterDescription is not authoritative
			// here and is ignored.
		case wire.BackendParseComplete, wire.BackendNoData:
			// no-op
		case wire.BackendNoticeResponse:
			c.notices.push(NoticeOrNotification{Fields: parseErrorFields(msg.Payload)})
		case wire.BackendErrorResponse:
			deferredErr = errors.FromWire(parseErrorFields(msg.Payload))
		case wire.BackendReadyForQuery:
			if len(msg.Payload) >= 1 {
				c.txStatus = TransactionStatus(msg.Payload[0])
			}
			if deferredErr != nil {
				return nil, deferredErr
			}
			entry.ParamFormats = make([]codec.FormatCode, len(oids))
			for i := range oids {
				entry.ParamFormats[i] = codec.FormatBinary
			}
			entry.Bind1 = buildBind1(name, entry.ParamFormats)
			entry.Bind2 = buildBind2(entry.RowDescription)
			return entry, nil
		}
	}
}

// buildBind1 precomputes portal="" + statement name + parameter format
// codes + parameter count (§4.7 step 4).
func buildBind1(statementName string, formats []codec.FormatCode) []byte {
	w := wire.NewWriter()
	w.CString("")
	w.CString(statementName)
	w.Int16(int16(len(formats)))
	for _, f := range formats {
		w.Int16(int16(f))
	}
	w.Int16(int16(len(formats)))
	return w.Bytes()
}

// buildBind2 precomputes the result-format codes section of Bind: one
// format code per result column, taken from the registry binding
// established at Describe time.
func buildBind2(fields []prepcache.RowField) []byte {
	w := wire.NewWriter()
	w.Int16(int16(len(fields)))
	for _, f := range fields {
		w.Int16(int16(f.Format))
	}
	return w.Bytes()
}

// bindExecuteSync builds and sends Bind/Execute/Sync, then drains
// inbound messages into cur until ReadyForQuery (§4.7 steps 5-6).
func (c *Connection) bindExecuteSync(cur *cursor.Cursor, entry *prepcache.Entry, params []codec.Param) error {
	w := wire.NewWriter()
	w.Message(wire.FrontendBind, func(w *wire.Writer) {
		w.RawBytes(entry.Bind1)
		for _, p := range params {
			w.LengthPrefixed(p.Bytes)
		}
		w.RawBytes(entry.Bind2)
	})
	w.Message(wire.FrontendExecute, func(w *wire.Writer) {
		w.CString("")
		w.Int32(0)
	})
	w.Message(wire.FrontendSync, func(w *wire.Writer) {})
	if err := c.stream.Flush(w); err != nil {
		c.closed = true
		return errors.Operationalf("cumulus: write Bind/Execute: %v", err).WithCause(err).Err()
	}

	return c.drainExecution(cur, entry)
}

func (c *Connection) drainExecution(cur *cursor.Cursor, entry *prepcache.Entry) error {
	var deferredErr error

	for {
		msg, err := c.stream.ReadMessage()
		if err != nil {
			c.closed = true
			return errors.Operationalf("cumulus: read during execution: %v", err).WithCause(err).Err()
		}

		switch msg.Type {
		case wire.BackendDataRow:
			row, err := decodeDataRow(msg.Payload, entry.RowDescription, c.registry)
			if err != nil {
				deferredErr = err
				continue
			}
			cur.AppendRow(row)

		case wire.BackendCommandComplete:
			c.handleCommandComplete(cur, string(trimNul(msg.Payload)))

		case wire.BackendNoticeResponse:
			c.notices.push(NoticeOrNotification{Fields: parseErrorFields(msg.Payload)})

		case wire.BackendNotificationResp:
			c.notifications.push(NoticeOrNotification{Fields: parseErrorFields(msg.Payload)})

		case wire.BackendErrorResponse:
			deferredErr = errors.FromWire(parseErrorFields(msg.Payload))

		case wire.BackendCopyInResponse:
			if err := c.handleCopyIn(cur); err != nil {
				deferredErr = err
			}

		case wire.BackendCopyOutResponse:
			// handled by successive CopyData/CopyDone below

		case wire.BackendCopyData:
			if cur.Stream == nil {
				deferredErr = errors.Interfacef("cumulus: COPY OUT requires a caller-supplied stream").Err()
				continue
			}
			if _, err := cur.Stream.Write(msg.Payload); err != nil {
				deferredErr = errors.Operationalf("cumulus: write COPY OUT data: %v", err).WithCause(err).Err()
			}

		case wire.BackendBindComplete, wire.BackendCloseComplete, wire.BackendPortalSuspended,
			wire.BackendNoData, wire.BackendEmptyQueryResponse, wire.BackendCopyDone:
			// no-op

		case wire.BackendReadyForQuery:
			if len(msg.Payload) >= 1 {
				c.txStatus = TransactionStatus(msg.Payload[0])
			}
			return deferredErr
		}
	}
}

// handleCommandComplete splits the tag on space, accumulates row counts
// for the known verbs, and triggers full cache invalidation on a
// completed ALTER/CREATE (§3, §4.7).
func (c *Connection) handleCommandComplete(cur *cursor.Cursor, tag string) {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return
	}
	verb := strings.ToUpper(fields[0])

	switch verb {
	case "ALTER", "CREATE":
		c.cache.InvalidateAll()
	case "SELECT":
		cur.RowCount = cur.VendorRowCount
	default:
		if c.rowCountTags[verb] && len(fields) >= 2 {
			if n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64); err == nil {
				if cur.RowCount == -1 {
					cur.RowCount = n
				} else {
					cur.RowCount += n
				}
			}
		}
	}
}

// handleCopyIn reads cur.Stream in 8 KiB chunks, forwarding each as
// CopyData, then sends CopyDone+Sync (§4.7).
func (c *Connection) handleCopyIn(cur *cursor.Cursor) error {
	if cur.Stream == nil {
		return errors.Interfacef("cumulus: COPY IN requires a caller-supplied stream").Err()
	}
	reader := bufio.NewReaderSize(cur.Stream, copyChunkSize)
	buf := make([]byte, copyChunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			w := wire.NewWriter()
			w.Message(wire.FrontendCopyData, func(w *wire.Writer) {
				w.RawBytes(buf[:n])
			})
			if flushErr := c.stream.Flush(w); flushErr != nil {
				return errors.Operationalf("cumulus: write CopyData: %v", flushErr).WithCause(flushErr).Err()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Operationalf("cumulus: read COPY IN stream: %v", err).WithCause(err).Err()
		}
	}
	w := wire.NewWriter()
	w.Message(wire.FrontendCopyDone, func(w *wire.Writer) {})
	w.Message(wire.FrontendSync, func(w *wire.Writer) {})
	return c.stream.Flush(w)
}

// decodeDataRow reads the 2-byte field count, then per field a 4-byte
// length (-1 = NULL) and the decoder bound at Describe time (§4.7).
func decodeDataRow(payload []byte, fields []prepcache.RowField, registry *codec.Registry) ([]interface{}, error) {
	if len(payload) < 2 {
		return nil, errors.Internalf("cumulus: DataRow payload too short").Err()
	}
	count := int(binary.BigEndian.Uint16(payload[0:2]))
	off := 2
	row := make([]interface{}, count)
	for i := 0; i < count; i++ {
		if len(payload) < off+4 {
			return nil, errors.Internalf("cumulus: DataRow truncated reading field %d length", i).Err()
		}
		length := int32(binary.BigEndian.Uint32(payload[off : off+4]))
		off += 4
		if length < 0 {
			row[i] = nil
			continue
		}
		if len(payload) < off+int(length) {
			return nil, errors.Internalf("cumulus: DataRow truncated reading field %d bytes", i).Err()
		}
		raw := payload[off : off+int(length)]
		off += int(length)

		var typeMod int32 = -1
		var oid codec.OID
		if i < len(fields) {
			oid = fields[i].TypeOID
			typeMod = fields[i].TypeMod
		}
		v, err := registry.Decode(oid, raw, typeMod)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// parseRowDescription decodes a RowDescription payload into the
// cache's RowField list, binding each field's decoder format from the
// registry (§3).
func parseRowDescription(payload []byte, registry *codec.Registry) []prepcache.RowField {
	if len(payload) < 2 {
		return nil
	}
	count := int(binary.BigEndian.Uint16(payload[0:2]))
	off := 2
	fields := make([]prepcache.RowField, 0, count)
	for i := 0; i < count; i++ {
		nameEnd := off
		for nameEnd < len(payload) && payload[nameEnd] != 0 {
			nameEnd++
		}
		name := string(payload[off:nameEnd])
		off = nameEnd + 1
		if len(payload) < off+18 {
			break
		}
		tableOID := binary.BigEndian.Uint32(payload[off : off+4])
		attrNum := int16(binary.BigEndian.Uint16(payload[off+4 : off+6]))
		typeOID := codec.OID(binary.BigEndian.Uint32(payload[off+6 : off+10]))
		typeSize := int16(binary.BigEndian.Uint16(payload[off+10 : off+12]))
		typeMod := int32(binary.BigEndian.Uint32(payload[off+12 : off+16]))
		off += 18

		fields = append(fields, prepcache.RowField{
			Name:       name,
			TableOID:   tableOID,
			ColumnAttr: attrNum,
			TypeOID:    typeOID,
			TypeSize:   typeSize,
			TypeMod:    typeMod,
			Format:     registry.FormatFor(typeOID),
		})
	}
	return fields
}

// drainToReadyForQuery discards messages until ReadyForQuery, used
// after sending Close+Sync for an evicted prepared statement where the
// caller has no cursor to populate.
func (c *Connection) drainToReadyForQuery() {
	for {
		msg, err := c.stream.ReadMessage()
		if err != nil {
			c.closed = true
			return
		}
		switch msg.Type {
		case wire.BackendNoticeResponse:
			c.notices.push(NoticeOrNotification{Fields: parseErrorFields(msg.Payload)})
		case wire.BackendReadyForQuery:
			if len(msg.Payload) >= 1 {
				c.txStatus = TransactionStatus(msg.Payload[0])
			}
			return
		}
	}
}

func trimNul(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
