// Command replay reads the compressed audit trail and prints it back as
// human-readable lines, optionally filtered by team or action type. The org
// uses it after a game day to answer "who did what, and when".
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"civilizace.org/internal/persistence"
)

func main() {
	dataDir := flag.String("data", "data", "server data directory")
	team := flag.String("team", "", "only entries for this team")
	actionType := flag.String("type", "", "only entries of this action type")
	unexpected := flag.Bool("unexpected", false, "only entries the engine flagged as unexpected")
	asJSON := flag.Bool("json", false, "print raw JSONL instead of formatted lines")
	flag.Parse()

	files, err := listAuditFiles(filepath.Join(*dataDir, "audit"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit files:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no audit files found")
		os.Exit(1)
	}

	keep := func(e persistence.AuditEntry) bool {
		if *team != "" && string(e.Team) != *team {
			return false
		}
		if *actionType != "" && e.Type != *actionType {
			return false
		}
		if *unexpected && e.Expected {
			return false
		}
		return true
	}

	var total, printed int
	for _, path := range files {
		n, p, err := replayFile(path, keep, *asJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		total += n
		printed += p
	}
	fmt.Fprintf(os.Stderr, "%d entries scanned, %d printed, %d files\n", total, printed, len(files))
}

// listAuditFiles returns the hourly audit segments in chronological order.
// The hour is embedded in the file name, so lexical order is time order.
func listAuditFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func replayFile(path string, keep func(persistence.AuditEntry) bool, asJSON bool) (total, printed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return 0, 0, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		total++
		var e persistence.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// A truncated tail line from a crashed server is not fatal.
			fmt.Fprintf(os.Stderr, "%s: skipping bad line: %v\n", path, err)
			continue
		}
		if !keep(e) {
			continue
		}
		printed++
		if asJSON {
			os.Stdout.Write(line)
			fmt.Println()
			continue
		}
		printEntry(e)
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return total, printed, err
	}
	return total, printed, nil
}

func printEntry(e persistence.AuditEntry) {
	mark := " "
	if !e.Expected {
		mark = "!"
	}
	line := fmt.Sprintf("%s %s %-10s %-20s %-14s %s", e.At, mark, e.Phase, e.Type, e.Team, e.ActionID)
	if e.Message != "" {
		line += "  " + strings.ReplaceAll(e.Message, "\n", " | ")
	}
	fmt.Println(line)
}
