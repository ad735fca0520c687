package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
)

const mechanismSCRAMSHA256 = "SCRAM-SHA-256"

// scramClient carries the state needed across the three-message
// SCRAM-SHA-256 exchange (§4.5 codes 10/11/12).
type scramClient struct {
	password     string
	clientNonce  string
	clientFirst  string // the bare message, without the "n,," gs2 header
	serverFirst  string
	saltedPwd    []byte
	authMessage  string
}

func newSCRAMClient(password string) *scramClient {
	return &scramClient{password: password, clientNonce: randomNonce()}
}

func randomNonce() string {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; panic matches the
		// driver's stance that TLS/auth entropy failures are fatal.
		panic(fmt.Sprintf("auth: crypto/rand unavailable: %v", err))
	}
	return base64.RawStdEncoding.EncodeToString(buf)
}

// initialResponse builds the client-first-message, gs2-header "n,,"
// prepended, as the SASLInitialResponse payload.
func (c *scramClient) initialResponse() []byte {
	c.clientFirst = fmt.Sprintf("n=,r=%s", c.clientNonce)
	return []byte("n,," + c.clientFirst)
}

// handleServerFirst parses the server-first-message, derives the salted
// password, and returns the client-final-message bytes.
func (c *scramClient) handleServerFirst(payload []byte) ([]byte, error) {
	c.serverFirst = string(payload)
	fields := parseSCRAMFields(c.serverFirst)

	serverNonce := fields["r"]
	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return nil, errors.Interfacef("auth: SCRAM server nonce does not extend client nonce").Err()
	}
	saltB64 := fields["s"]
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, errors.Interfacef("auth: SCRAM salt is not valid base64: %v", err).Err()
	}
	iterations, err := strconv.Atoi(fields["i"])
	if err != nil {
		return nil, errors.Interfacef("auth: SCRAM iteration count is not an integer: %v", err).Err()
	}

	c.saltedPwd = pbkdf2.Key([]byte(c.password), salt, iterations, sha256.Size, sha256.New)

	channelBinding := base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalNoProof := fmt.Sprintf("c=%s,r=%s", channelBinding, serverNonce)
	c.authMessage = c.clientFirst + "," + c.serverFirst + "," + clientFinalNoProof

	clientKey := hmacSHA256(c.saltedPwd, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	final := fmt.Sprintf("%s,p=%s", clientFinalNoProof, base64.StdEncoding.EncodeToString(clientProof))
	return []byte(final), nil
}

// handleServerFinal verifies the server's ServerSignature, proving the
// server knew the shared secret.
func (c *scramClient) handleServerFinal(payload []byte) error {
	fields := parseSCRAMFields(string(payload))
	if errMsg, ok := fields["e"]; ok {
		return errors.Interfacef("auth: SCRAM server reported error: %s", errMsg).Err()
	}
	serverKey := hmacSHA256(c.saltedPwd, []byte("Server Key"))
	expected := hmacSHA256(serverKey, []byte(c.authMessage))

	gotB64 := fields["v"]
	got, err := base64.StdEncoding.DecodeString(gotB64)
	if err != nil {
		return errors.Interfacef("auth: SCRAM server signature is not valid base64: %v", err).Err()
	}
	if !hmac.Equal(got, expected) {
		return errors.Interfacef("auth: SCRAM server signature mismatch").Err()
	}
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func parseSCRAMFields(msg string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 || part[1] != '=' {
			continue
		}
		fields[part[:1]] = part[2:]
	}
	return fields
}
