package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"roomsync.ai/internal/hub"
	persistlog "roomsync.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rooms":
			roomsCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "live":
			liveCmd(os.Args[2:])
			return
		case "schema":
			schemaCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin rooms|audit|live|schema [flags]")
	os.Exit(2)
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	conn := fs.String("conn", "", "connection id filter")
	room := fs.String("room", "", "room filter (matches room or from_room)")
	asJSON := fs.Bool("json", false, "print raw JSONL")
	_ = fs.Parse(args)

	n, err := printAudit(os.Stdout, *dataDir, auditFilter{Conn: strings.TrimSpace(*conn), Room: strings.TrimSpace(*room)}, *asJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Fprintln(os.Stderr, "no matching audit entries")
	}
}

type auditFilter struct {
	Conn string
	Room string
}

func (f auditFilter) match(e hub.AuditEntry) bool {
	if f.Conn != "" && e.Conn != f.Conn {
		return false
	}
	if f.Room != "" && e.Room != f.Room && e.FromRoom != f.Room {
		return false
	}
	return true
}

func printAudit(w io.Writer, dataDir string, f auditFilter, asJSON bool) (int, error) {
	files, err := persistlog.AuditFiles(dataDir)
	if err != nil {
		return 0, err
	}
	n := 0
	enc := json.NewEncoder(w)
	for _, path := range files {
		err := persistlog.ReadAudit(path, func(e hub.AuditEntry) error {
			if !f.match(e) {
				return nil
			}
			n++
			if asJSON {
				return enc.Encode(e)
			}
			line := fmt.Sprintf("%s %-10s %s", e.Time, e.Action, e.Conn)
			if e.Room != "" {
				line += " room=" + e.Room
			}
			if e.FromRoom != "" {
				line += " from=" + e.FromRoom
			}
			_, err := fmt.Fprintln(w, line)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("%s: %w", path, err)
		}
	}
	return n, nil
}
