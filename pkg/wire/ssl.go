package wire

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// sslRequestCode is the magic number sent in place of a protocol version
// in an SSLRequest message (1234 in the high 16 bits, 5679 in the low).
const sslRequestCode uint32 = 80877103

// SSLMode selects how the connection negotiates TLS, mirroring the
// driver's sslmode connection parameter.
type SSLMode int

const (
	// SSLDisable never attempts TLS.
	SSLDisable SSLMode = iota
	// SSLAllow sends an SSLRequest and continues in plaintext if the
	// server declines; if the server accepts, the handshake uses Go's
	// default certificate and hostname verification.
	SSLAllow
	// SSLRequire demands TLS but does not validate the server certificate.
	SSLRequire
	// SSLVerifyCA validates the server certificate against a trusted CA
	// but does not check the hostname.
	SSLVerifyCA
	// SSLVerifyFull validates the certificate and the server hostname.
	SSLVerifyFull
)

// NegotiateTLS sends an SSLRequest over conn and, if the server agrees,
// performs the TLS client handshake. It returns the connection to use
// for all subsequent traffic, which is conn itself when mode is
// SSLDisable or the server declined and mode is SSLAllow.
//
// serverName is used for hostname verification under SSLVerifyFull and
// for SNI; rootCAs, when non-nil, overrides the system trust store for
// SSLVerifyCA and SSLVerifyFull.
func NegotiateTLS(conn net.Conn, mode SSLMode, serverName string, rootCAs *tls.Config) (net.Conn, error) {
	if mode == SSLDisable {
		return conn, nil
	}

	var req [8]byte
	binary.BigEndian.PutUint32(req[0:4], 8)
	binary.BigEndian.PutUint32(req[4:8], sslRequestCode)
	if _, err := conn.Write(req[:]); err != nil {
		return nil, fmt.Errorf("wire: send SSLRequest: %w", err)
	}

	var resp [1]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return nil, fmt.Errorf("wire: read SSLRequest response: %w", err)
	}

	switch resp[0] {
	case 'N':
		if mode == SSLAllow {
			return conn, nil
		}
		return nil, fmt.Errorf("wire: server refused TLS and sslmode requires it")
	case 'S':
		// fall through to handshake
	default:
		return nil, fmt.Errorf("wire: unexpected SSLRequest response byte %q", resp[0])
	}

	cfg := &tls.Config{ServerName: serverName}
	if rootCAs != nil {
		cfg.RootCAs = rootCAs.RootCAs
	}

	switch mode {
	case SSLRequire:
		// Encrypt the channel but skip certificate and hostname
		// validation entirely.
		cfg.InsecureSkipVerify = true
	case SSLVerifyCA:
		// Validate the chain against a trusted root but accept any
		// hostname: disable Go's built-in verification and supply our
		// own callback that checks the chain only.
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainOnly(cfg.RootCAs)
	case SSLVerifyFull:
		// Default Go behavior: chain plus hostname match against
		// serverName.
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("wire: TLS handshake: %w", err)
	}
	return tlsConn, nil
}

// verifyChainOnly builds a VerifyPeerCertificate callback that checks the
// certificate chains up to a trusted root without matching the hostname,
// for SSLVerifyCA.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("wire: no certificate presented")
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("wire: parse peer certificate: %w", err)
		}
		intermediates := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("wire: parse intermediate certificate: %w", err)
			}
			intermediates.AddCert(cert)
		}
		_, err = leaf.Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		if err != nil {
			return fmt.Errorf("wire: certificate chain verification failed: %w", err)
		}
		return nil
	}
}
