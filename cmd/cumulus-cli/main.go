package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	cumulus "github.com/cumulusdb/cumulus-go"
	"github.com/cumulusdb/cumulus-go/pkg/auth"
	"github.com/cumulusdb/cumulus-go/pkg/cursor"
	"github.com/cumulusdb/cumulus-go/pkg/log"
	"github.com/cumulusdb/cumulus-go/pkg/paramstyle"
	"github.com/cumulusdb/cumulus-go/pkg/wire"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cumulus-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		host        = fs.String("host", "localhost", "Server hostname")
		port        = fs.Int("port", 5439, "Server port")
		user        = fs.String("user", "", "Username")
		password    = fs.String("password", "", "Password")
		database    = fs.String("database", "", "Database name")
		sslMode     = fs.String("sslmode", "require", "SSL mode: disable, allow, require, verify-ca, verify-full")
		idpToken    = fs.String("idp-token-file", "", "Path to an identity-provider token file, watched for rotation")
		timeout     = fs.Duration("connect-timeout", 10*time.Second, "Connection timeout")
		showVersion = fs.Bool("version", false, "Show version")
	)
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, cumulus.DriverVersion())
		return 0
	}

	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fmt.Fprintln(stderr, "error: no query given")
		printUsage(stderr)
		return 2
	}

	mode, err := parseSSLMode(*sslMode)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	creds := auth.Credentials{User: *user, Password: *password}
	if *idpToken != "" {
		watcher, err := auth.NewTokenWatcher(*idpToken, log.Default())
		if err != nil {
			fmt.Fprintf(stderr, "error: loading identity token: %v\n", err)
			return 1
		}
		defer watcher.Close()
		token, err := watcher.Token()
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		creds.WebIdentityToken = token
	}

	conn, err := cumulus.Open(*host, *port, *user, *database,
		cumulus.WithCredentials(creds),
		cumulus.WithSSLMode(mode),
		cumulus.WithApplicationName("cumulus-cli"),
		cumulus.WithConnectTimeout(*timeout),
	)
	if err != nil {
		fmt.Fprintf(stderr, "error: connecting: %v\n", err)
		return 1
	}
	defer conn.Close()

	cur := cursor.New("qmark")
	if err := conn.Execute(cur, paramstyle.Qmark, query, nil, nil); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	for _, notice := range conn.DrainNotices() {
		fmt.Fprintf(stderr, "NOTICE: %s\n", notice.Fields['M'])
	}

	if cur.Statement != nil && len(cur.Statement.RowDescription) > 0 {
		printRows(stdout, cur)
	}
	fmt.Fprintf(stdout, "(%d rows)\n", cur.RowCount)
	return 0
}

func printRows(w io.Writer, cur *cursor.Cursor) {
	names := make([]string, len(cur.Statement.RowDescription))
	for i, f := range cur.Statement.RowDescription {
		names[i] = f.Name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	for _, row := range cur.CachedRows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func parseSSLMode(s string) (wire.SSLMode, error) {
	switch s {
	case "disable":
		return wire.SSLDisable, nil
	case "allow":
		return wire.SSLAllow, nil
	case "require":
		return wire.SSLRequire, nil
	case "verify-ca":
		return wire.SSLVerifyCA, nil
	case "verify-full":
		return wire.SSLVerifyFull, nil
	default:
		return 0, fmt.Errorf("unknown sslmode %q", s)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `cumulus-cli - run a single query against a cumulus-compatible server

Usage:
  cumulus-cli [options] <query>

Options:
  -host <host>              Server hostname (default: localhost)
  -port <port>              Server port (default: 5439)
  -user <user>              Username
  -password <password>      Password
  -database <name>          Database name
  -sslmode <mode>           disable, allow, require, verify-ca, verify-full (default: require)
  -idp-token-file <path>    Identity-provider token file, watched for rotation
  -connect-timeout <dur>    Connection timeout (default: 10s)
  -version                  Show version

Examples:
  cumulus-cli -user alice -database analytics "select 1"
  cumulus-cli -sslmode verify-full -host cluster.example.com "select count(*) from events"
`)
}
