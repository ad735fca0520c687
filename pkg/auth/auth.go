// Package auth drives the authentication sub-dialog triggered by an
// AuthenticationRequest message, dispatching on its 4-byte sub-code to
// one of six mutually exclusive flows.
package auth

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
	"github.com/cumulusdb/cumulus-go/pkg/wire"
)

// Sub-codes carried in the first 4 bytes of an AuthenticationRequest
// payload.
const (
	codeOK             = 0
	codeCleartext      = 3
	codeMD5            = 5
	codeSASL           = 10
	codeSASLContinue   = 11
	codeSASLFinal      = 12
	codeDigest         = 13
	codeIdPToken       = 14
)

// Credentials supplies whatever secret the negotiated method needs.
// Fields are read lazily; only the one the server demands must be set.
type Credentials struct {
	Password        string
	User            string
	WebIdentityToken string
}

// Sender writes a single frontend message and flushes it, used instead
// of taking a *wire.Stream directly so the state machine stays
// independent of connection bookkeeping.
type Sender interface {
	SendAuthResponse(typeCode byte, payload []byte) error
}

// Machine drives the authentication exchange to completion or failure.
// It is stateful only across the three SASL messages; every other code
// is handled in a single round trip.
type Machine struct {
	creds Credentials
	scram *scramClient
}

// NewMachine returns a Machine configured with the credentials the
// negotiated method may need.
func NewMachine(creds Credentials) *Machine {
	return &Machine{creds: creds}
}

// HandleAuthenticationRequest processes one AuthenticationRequest
// payload and sends any required response via sender. It returns true
// only for code 0 (AuthenticationOk); every other handled code,
// including the SASL steps 10/11/12, returns false, and the caller keeps
// invoking this method as further AuthenticationRequest messages arrive.
func (m *Machine) HandleAuthenticationRequest(payload []byte, sender Sender) (done bool, err error) {
	if len(payload) < 4 {
		return false, errors.Interfacef("auth: AuthenticationRequest payload too short").Err()
	}
	code := binary.BigEndian.Uint32(payload[0:4])
	rest := payload[4:]

	switch code {
	case codeOK:
		return true, nil

	case codeCleartext:
		if m.creds.Password == "" {
			return false, errors.Interfacef("auth: password required but not provided").Err()
		}
		return false, sender.SendAuthResponse(wire.FrontendPassword, append([]byte(m.creds.Password), 0))

	case codeMD5:
		if m.creds.Password == "" {
			return false, errors.Interfacef("auth: password required but not provided").Err()
		}
		if len(rest) != 4 {
			return false, errors.Interfacef("auth: MD5 salt payload must be 4 bytes").Err()
		}
		resp := md5Response(m.creds.User, m.creds.Password, rest)
		return false, sender.SendAuthResponse(wire.FrontendPassword, append([]byte(resp), 0))

	case codeSASL:
		m.scram = newSCRAMClient(m.creds.Password)
		mechanisms := splitCStrings(rest)
		if !containsMechanism(mechanisms, mechanismSCRAMSHA256) {
			return false, errors.Interfacef("auth: server did not advertise SCRAM-SHA-256").Err()
		}
		initial := m.scram.initialResponse()
		return false, sender.SendAuthResponse(wire.FrontendPassword, buildSASLInitial(mechanismSCRAMSHA256, initial))

	case codeSASLContinue:
		if m.scram == nil {
			return false, errors.Interfacef("auth: SASL continue received before init").Err()
		}
		final, err := m.scram.handleServerFirst(rest)
		if err != nil {
			return false, err
		}
		return false, sender.SendAuthResponse(wire.FrontendPassword, final)

	case codeSASLFinal:
		if m.scram == nil {
			return false, errors.Interfacef("auth: SASL final received before init").Err()
		}
		if err := m.scram.handleServerFinal(rest); err != nil {
			return false, err
		}
		return false, nil

	case codeDigest:
		resp, err := buildDigestResponse(rest, m.creds.Password)
		if err != nil {
			return false, err
		}
		return false, sender.SendAuthResponse('d', resp)

	case codeIdPToken:
		if m.creds.WebIdentityToken == "" {
			return false, errors.Interfacef("auth: web identity token required but not provided").Err()
		}
		return false, sender.SendAuthResponse('i', []byte(m.creds.WebIdentityToken))

	case 2, 4, 6, 7, 8, 9:
		return false, errors.Interfacef("auth: authentication method not supported (code %d)", code).Err()

	default:
		return false, errors.Interfacef("auth: authentication method not recognized (code %d)", code).Err()
	}
}

// md5Response computes `md5` + hex(md5(hex(md5(pwd‖user)) ‖ salt)).
func md5Response(user, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(innerHex), salt...))
	return "md5" + hex.EncodeToString(outer[:])
}

func splitCStrings(buf []byte) []string {
	var out []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				out = append(out, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func containsMechanism(list []string, want string) bool {
	for _, m := range list {
		if m == want {
			return true
		}
	}
	return false
}

func buildSASLInitial(mechanism string, clientFirst []byte) []byte {
	w := wire.NewWriter()
	w.CString(mechanism)
	w.Int32(int32(len(clientFirst)))
	w.RawBytes(clientFirst)
	return w.Bytes()
}
