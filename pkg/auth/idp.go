package auth

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
	"github.com/cumulusdb/cumulus-go/pkg/log"
)

// TokenSource supplies the current web-identity token for IdP token
// authentication (§4.5 code 14). The driver itself takes the token as
// the string Credentials.WebIdentityToken; callers read it from a
// TokenSource first (IAM/IdP acquisition is out of scope here). This
// package ships two implementations: StaticToken, and TokenWatcher,
// which reads a token file that an external process rotates.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that never changes, useful for tests and
// for callers that already hold a short-lived token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() (string, error) { return string(s), nil }

// TokenWatcher reads a web-identity token from a file and keeps it
// current by watching the file for writes, the pattern commonly used
// for projected IRSA-style service account tokens that a kubelet
// rewrites in place.
type TokenWatcher struct {
	mu     sync.RWMutex
	path   string
	token  string
	logger *log.Logger

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewTokenWatcher reads path once synchronously, then starts watching
// it in the background for rotations.
func NewTokenWatcher(path string, logger *log.Logger) (*TokenWatcher, error) {
	tw := &TokenWatcher{path: path, logger: logger, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	if err := tw.reload(); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Operationalf("auth: create token file watcher: %v", err).WithCause(err).Err()
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, errors.Operationalf("auth: watch token file %s: %v", path, err).WithCause(err).Err()
	}
	tw.fsWatcher = fsw
	go tw.run()
	return tw, nil
}

func (tw *TokenWatcher) reload() error {
	b, err := os.ReadFile(tw.path)
	if err != nil {
		return errors.Operationalf("auth: read token file %s: %v", tw.path, err).WithCause(err).Err()
	}
	tw.mu.Lock()
	tw.token = string(b)
	tw.mu.Unlock()
	return nil
}

func (tw *TokenWatcher) run() {
	defer close(tw.doneCh)
	for {
		select {
		case <-tw.stopCh:
			return
		case event, ok := <-tw.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := tw.reload(); err != nil && tw.logger != nil {
					tw.logger.Auth().Error("failed to reload rotated token", err, "path", tw.path)
				}
			}
		case err, ok := <-tw.fsWatcher.Errors:
			if !ok {
				return
			}
			if tw.logger != nil {
				tw.logger.Auth().Error("token watcher error", err, "path", tw.path)
			}
		}
	}
}

// Token returns the most recently loaded token.
func (tw *TokenWatcher) Token() (string, error) {
	tw.mu.RLock()
	defer tw.mu.RUnlock()
	if tw.token == "" {
		return "", errors.Interfacef("auth: web identity token required but not provided").Err()
	}
	return tw.token, nil
}

// Close stops the background watch goroutine.
func (tw *TokenWatcher) Close() error {
	close(tw.stopCh)
	<-tw.doneCh
	return tw.fsWatcher.Close()
}
