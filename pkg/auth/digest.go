package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
	"github.com/cumulusdb/cumulus-go/pkg/wire"
)

// digestAlgorithm indexes into the wire protocol's zero-based table of
// supported salted-digest algorithms; only SHA-256 is defined (§4.5).
type digestAlgorithm uint32

const digestAlgoSHA256 digestAlgorithm = 0

// buildDigestResponse parses the server's (algo, salt_len, salt,
// server_nonce_len, server_nonce) payload and returns the
// (digest, client_nonce) response framed as required by the extensible
// salted digest method.
func buildDigestResponse(payload []byte, password string) ([]byte, error) {
	if len(payload) < 8 {
		return nil, errors.Interfacef("auth: digest payload too short").Err()
	}
	algo := digestAlgorithm(binary.BigEndian.Uint32(payload[0:4]))
	saltLen := binary.BigEndian.Uint32(payload[4:8])
	off := 8
	if len(payload) < off+int(saltLen)+4 {
		return nil, errors.Interfacef("auth: digest payload truncated reading salt").Err()
	}
	salt := payload[off : off+int(saltLen)]
	off += int(saltLen)

	nonceLen := binary.BigEndian.Uint32(payload[off : off+4])
	off += 4
	if len(payload) < off+int(nonceLen) {
		return nil, errors.Interfacef("auth: digest payload truncated reading server nonce").Err()
	}
	serverNonce := payload[off : off+int(nonceLen)]

	if algo != digestAlgoSHA256 {
		return nil, errors.Interfacef("auth: unsupported digest algorithm index %d", algo).Err()
	}

	clientNonce := []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))

	mac := hmac.New(sha256.New, append(append([]byte{}, salt...), []byte(password)...))
	mac.Write(serverNonce)
	mac.Write(clientNonce)
	digest := mac.Sum(nil)

	w := wire.NewWriter()
	w.Int32(int32(len(digest)))
	w.RawBytes(digest)
	w.Int32(int32(len(clientNonce)))
	w.RawBytes(clientNonce)
	return w.Bytes(), nil
}
