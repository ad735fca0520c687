package auth

import (
	"encoding/binary"
	"testing"
)

type recordingSender struct {
	typeCode byte
	payload  []byte
}

func (s *recordingSender) SendAuthResponse(typeCode byte, payload []byte) error {
	s.typeCode = typeCode
	s.payload = payload
	return nil
}

func authPayload(code uint32, rest ...byte) []byte {
	buf := make([]byte, 4+len(rest))
	binary.BigEndian.PutUint32(buf[0:4], code)
	copy(buf[4:], rest)
	return buf
}

func TestMD5Response(t *testing.T) {
	m := NewMachine(Credentials{User: "alice", Password: "secret"})
	sender := &recordingSender{}

	salt := []byte{0xde, 0xad, 0xbe, 0xef}
	done, err := m.HandleAuthenticationRequest(authPayload(5, salt...), sender)
	if err != nil {
		t.Fatalf("HandleAuthenticationRequest: %v", err)
	}
	if done {
		t.Fatalf("MD5 exchange should not be marked done by the client message")
	}

	want := "md5" + md5ResponseHex("secret", "alice", salt)
	got := string(sender.payload[:len(sender.payload)-1])
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func md5ResponseHex(password, user string, salt []byte) string {
	return md5Response(user, password, salt)[3:]
}

func TestAuthenticationOK(t *testing.T) {
	m := NewMachine(Credentials{})
	done, err := m.HandleAuthenticationRequest(authPayload(0), &recordingSender{})
	if err != nil {
		t.Fatalf("HandleAuthenticationRequest: %v", err)
	}
	if !done {
		t.Fatalf("expected done=true for AuthenticationOk")
	}
}

func TestUnsupportedMethod(t *testing.T) {
	m := NewMachine(Credentials{})
	if _, err := m.HandleAuthenticationRequest(authPayload(7), &recordingSender{}); err == nil {
		t.Fatalf("expected error for unsupported method code 7")
	}
}

func TestUnknownMethod(t *testing.T) {
	m := NewMachine(Credentials{})
	if _, err := m.HandleAuthenticationRequest(authPayload(99), &recordingSender{}); err == nil {
		t.Fatalf("expected error for unrecognized method code 99")
	}
}
