// Package endpoint parses serverless endpoint hostnames into their
// account id and region components.
package endpoint

import (
	"strings"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
)

// Serverless identifies a workgroup-scoped serverless endpoint, parsed
// from a hostname of the form
// "<account_id>.<region>.<service>-serverless.amazonaws.com".
type Serverless struct {
	AccountID string
	Region    string
}

const serverlessSuffix = "-serverless.amazonaws.com"

// ParseServerless extracts AccountID and Region from host, or returns
// an error if host is not a recognized serverless endpoint hostname.
func ParseServerless(host string) (Serverless, error) {
	idx := strings.Index(host, serverlessSuffix)
	if idx < 0 {
		return Serverless{}, errors.Interfacef("endpoint: %q is not a serverless endpoint hostname", host).Err()
	}
	prefix := host[:idx]
	// prefix is "<account_id>.<region>.<service>"; drop the trailing
	// ".<service>" label before splitting account/region.
	lastDot := strings.LastIndex(prefix, ".")
	if lastDot < 0 {
		return Serverless{}, errors.Interfacef("endpoint: %q is missing the service label", host).Err()
	}
	prefix = prefix[:lastDot]

	firstDot := strings.Index(prefix, ".")
	if firstDot < 0 {
		return Serverless{}, errors.Interfacef("endpoint: %q is missing an account id or region", host).Err()
	}
	return Serverless{AccountID: prefix[:firstDot], Region: prefix[firstDot+1:]}, nil
}
