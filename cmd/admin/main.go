// Command admin is the org's offline toolbox: it inspects the game database
// directly, without going through the running server.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"civilizace.org/internal/persistence"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "unfinished":
			unfinishedCmd(os.Args[2:])
			return
		case "action":
			actionCmd(os.Args[2:])
			return
		case "scheduled":
			scheduledCmd(os.Args[2:])
			return
		}
	}
	revisionCmd(os.Args[1:])
}

func openStore(fs *flag.FlagSet, args []string) *persistence.Store {
	dbPath := fs.String("db", "data/game.db", "path to the game database")
	_ = fs.Parse(args)
	store, err := persistence.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return store
}

// revisionCmd prints a one-line summary of the latest stored revision.
func revisionCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	store := openStore(fs, args)
	defer store.Close()

	rev, entitiesRev, st, err := store.LatestRevision()
	if errors.Is(err, persistence.ErrNoRevision) {
		fmt.Println("no revision stored yet")
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "latest revision:", err)
		os.Exit(1)
	}
	fmt.Printf("revision=%d entities_rev=%d turn=%d teams=%d armies=%d\n",
		rev, entitiesRev, st.World.Turn, len(st.Teams), len(st.Map.Armies))
}

// stateCmd dumps the latest game state as JSON.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("admin state", flag.ExitOnError)
	store := openStore(fs, args)
	defer store.Close()

	_, _, st, err := store.LatestRevision()
	if err != nil {
		fmt.Fprintln(os.Stderr, "latest revision:", err)
		os.Exit(1)
	}
	raw, err := st.Serialize()
	if err != nil {
		fmt.Fprintln(os.Stderr, "serialize:", err)
		os.Exit(1)
	}
	os.Stdout.Write(raw)
	fmt.Println()
}

// unfinishedCmd lists actions stuck between initiate and commit.
func unfinishedCmd(args []string) {
	fs := flag.NewFlagSet("admin unfinished", flag.ExitOnError)
	store := openStore(fs, args)
	defer store.Close()

	rows, err := store.UnfinishedActions()
	if err != nil {
		fmt.Fprintln(os.Stderr, "unfinished:", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("no unfinished actions")
		return
	}
	for _, r := range rows {
		fmt.Printf("%s  %-20s %-14s %s\n", r.CreatedAt, r.Type, r.Team, r.ID)
	}
}

// actionCmd shows one persisted action with its payment bookkeeping.
func actionCmd(args []string) {
	fs := flag.NewFlagSet("admin action", flag.ExitOnError)
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin action <id> [-db path]")
		os.Exit(2)
	}
	id := args[0]
	store := openStore(fs, args[1:])
	defer store.Close()

	inst, err := store.GetAction(id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "action:", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal:", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
	fmt.Println()
}

// scheduledCmd lists delayed effects due at the given game time. Without
// flags it lists everything still pending.
func scheduledCmd(args []string) {
	fs := flag.NewFlagSet("admin scheduled", flag.ExitOnError)
	turn := fs.Int("turn", 1<<30, "due check: world turn")
	offset := fs.Int("offset", 0, "due check: seconds into the turn")
	store := openStore(fs, args)
	defer store.Close()

	due, err := store.DueScheduled(*turn, *offset)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scheduled:", err)
		os.Exit(1)
	}
	if len(due) == 0 {
		fmt.Println("nothing due")
		return
	}
	for _, r := range due {
		fmt.Printf("#%d  turn=%d+%ds  %-16s %-14s action=%s args=%s\n",
			r.ID, r.TargetTurn, r.TargetOffset, r.Type, r.Team, r.ActionID, r.Args)
	}
}
