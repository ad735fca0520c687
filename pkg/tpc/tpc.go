// Package tpc implements the two-phase commit coordinator layered over
// the extended-query driver (§4.9).
package tpc

import (
	"fmt"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
)

// Xid is a transaction identifier 3-tuple; only Gtrid is transmitted to
// the server.
type Xid struct {
	FormatID int32
	Gtrid    string
	Bqual    string
}

// Executor is the subset of the connection engine the coordinator
// needs: running a plain SQL command and toggling autocommit.
type Executor interface {
	ExecuteSimple(sql string) error
	SetAutocommit(on bool) error
	Autocommit() bool
}

// Coordinator drives tpc_begin/tpc_prepare/tpc_commit/tpc_rollback over
// an Executor.
type Coordinator struct {
	exec             Executor
	xid              *Xid
	savedAutocommit  bool
	autocommitForced bool
}

// New returns a Coordinator bound to exec.
func New(exec Executor) *Coordinator {
	return &Coordinator{exec: exec}
}

// Begin stores xid and, if autocommit is currently on, issues `begin
// transaction`.
func (c *Coordinator) Begin(xid Xid) error {
	c.xid = &xid
	if c.exec.Autocommit() {
		return c.exec.ExecuteSimple("begin transaction")
	}
	return nil
}

// Prepare requires a stored xid whose gtrid has length at least 2 and
// issues `PREPARE TRANSACTION '<gtrid>'`.
func (c *Coordinator) Prepare() error {
	if c.xid == nil {
		return errors.Programmingf("tpc: prepare called without an active transaction").Err()
	}
	if len(c.xid.Gtrid) < 2 {
		return errors.Programmingf("tpc: xid gtrid must be at least 2 characters, got %q", c.xid.Gtrid).Err()
	}
	return c.exec.ExecuteSimple(fmt.Sprintf("PREPARE TRANSACTION '%s'", escapeLiteral(c.xid.Gtrid)))
}

// RecoverFunc queries the server's pending-prepared view (e.g.
// stl_undone) and reports whether gtrid appears there, meaning the
// two-phase PREPARE TRANSACTION already completed.
type RecoverFunc func(gtrid string) (bool, error)

// Commit checks recover to decide between the two-phase COMMIT PREPARED
// path and the single-phase commit path, forcing autocommit on for the
// duration and restoring it afterward.
func (c *Coordinator) Commit(recover RecoverFunc) error {
	return c.finish(recover, "COMMIT PREPARED", "commit")
}

// Rollback mirrors Commit for the abort path.
func (c *Coordinator) Rollback(recover RecoverFunc) error {
	return c.finish(recover, "ROLLBACK PREPARED", "rollback")
}

func (c *Coordinator) finish(recover RecoverFunc, twoPhaseVerb, onePhaseVerb string) error {
	if c.xid == nil {
		return errors.Programmingf("tpc: %s called without an active transaction", onePhaseVerb).Err()
	}
	xid := *c.xid

	prepared, err := recover(xid.Gtrid)
	if err != nil {
		return err
	}

	wasAutocommit := c.exec.Autocommit()
	if !wasAutocommit {
		if err := c.exec.SetAutocommit(true); err != nil {
			return err
		}
		defer c.exec.SetAutocommit(false)
	}

	if prepared {
		err = c.exec.ExecuteSimple(fmt.Sprintf("%s '%s'", twoPhaseVerb, escapeLiteral(xid.Gtrid)))
	} else {
		err = c.exec.ExecuteSimple(onePhaseVerb)
	}
	c.xid = nil
	return err
}

func escapeLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
