// seqdb is an interactive CLI for a single typed column backed by a
// rawdb database, in the same put/get/scan REPL style as the cache CLI
// this tool replaces.
//
// Usage:
//
//	seqdb --db <dir> [--format raw|compressed] [--name values] [--data-version 1]
//
// Commands (in REPL):
//
//	put <index> <value>            Insert or update a value
//	get <index>                    Read a value (overlay-aware)
//	del <index>                    Delete a value (raw format only)
//	scan [limit]                   Iterate values in ascending index order
//	len                            Show stored/pushed/total length
//	info                           Show column header info
//	flush                          Flush pending pushed/updated/holes to disk
//	stamp <n>                      Stamped flush, recording a change file (raw only)
//	rollback                       Undo the most recent stamped flush (raw only)
//	bulk <count>                   Push N sequential int64 values
//	bench <count>                  Benchmark push+flush+read
//	du                             Show on-disk usage by region
//	help                           Show this help
//	exit / quit / q                Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
	"github.com/seqdb/seqdb-sub000/pkg/vecdb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "seqdb:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("seqdb", flag.ExitOnError)
	dbDir := fs.StringP("db", "d", "", "database directory (created if missing)")
	format := fs.StringP("format", "f", "raw", "column format: raw or compressed")
	name := fs.StringP("name", "n", "values", "column name")
	indexType := fs.String("index-type", "u64", "column index-type tag, for region naming")
	dataVersion := fs.Uint64P("data-version", "v", 1, "column data version")
	savedChanges := fs.Uint16("saved-stamped-changes", 8, "stamped change files to retain (raw only, 0 disables rollback)")
	fs.Parse(os.Args[1:])

	if *dbDir == "" {
		return errors.New("--db is required")
	}

	var fmtVal vecdb.Format
	switch strings.ToLower(*format) {
	case "raw":
		fmtVal = vecdb.FormatRaw
	case "compressed":
		fmtVal = vecdb.FormatCompressed
	default:
		return fmt.Errorf("--format must be raw or compressed, got %q", *format)
	}

	db, err := rawdb.Open(*dbDir, rawdb.Options{})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	col, err := vecdb.Import[uint64, int64](vecdb.ImportOptions{
		DB:                  db,
		Name:                *name,
		IndexType:           *indexType,
		DataVersion:         *dataVersion,
		SavedStampedChanges: *savedChanges,
	}, fmtVal, nil)
	if err != nil {
		return fmt.Errorf("opening column: %w", err)
	}

	repl := &REPL{db: db, col: col, format: fmtVal}
	return repl.Run()
}

// REPL is the interactive command loop over one open column.
type REPL struct {
	db     *rawdb.DB
	col    vecdb.Column[uint64, int64]
	format vecdb.Format
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".seqdb_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("seqdb - column CLI (name=%s, format=%s)\n", r.col.Name(), r.format)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("seqdb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet(args)

		case "del", "delete":
			r.cmdDelete(args)

		case "scan", "ls", "list":
			r.cmdScan(args)

		case "len", "count":
			r.cmdLen()

		case "info":
			r.cmdInfo()

		case "flush":
			r.cmdFlush()

		case "stamp":
			r.cmdStamp(args)

		case "rollback":
			r.cmdRollback()

		case "bulk":
			r.cmdBulk(args)

		case "bench":
			r.cmdBench(args)

		case "du":
			r.cmdDiskUsage()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"put", "get", "del", "delete", "scan", "ls", "list",
		"len", "count", "info", "flush", "stamp", "rollback",
		"bulk", "bench", "du", "clear", "cls",
		"help", "exit", "quit", "q",
	}
	var completions []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			completions = append(completions, c)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <index> <value>   Insert or update a value")
	fmt.Println("  get <index>           Read a value")
	fmt.Println("  del <index>           Delete a value (raw format only)")
	fmt.Println("  scan [limit]          Iterate values in ascending index order")
	fmt.Println("  len                   Show stored/pushed/total length")
	fmt.Println("  info                  Show column header info")
	fmt.Println("  flush                 Flush pending overlays to disk")
	fmt.Println("  stamp <n>             Stamped flush, recording a change file (raw only)")
	fmt.Println("  rollback              Undo the most recent stamped flush (raw only)")
	fmt.Println("  bulk <count>          Push N sequential int64 values")
	fmt.Println("  bench <count>         Benchmark push+flush+read")
	fmt.Println("  du                    Show on-disk usage by region")
	fmt.Println("  help                  Show this help")
	fmt.Println("  exit / quit / q       Exit")
}

func parseIndex(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }
func parseValue(s string) (int64, error)  { return strconv.ParseInt(s, 10, 64) }

func (r *REPL) cmdPut(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: put <index> <value>")
		return
	}
	index, err := parseIndex(args[0])
	if err != nil {
		fmt.Println("bad index:", err)
		return
	}
	value, err := parseValue(args[1])
	if err != nil {
		fmt.Println("bad value:", err)
		return
	}
	if err := r.col.UpdateOrPush(index, value); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <index>")
		return
	}
	index, err := parseIndex(args[0])
	if err != nil {
		fmt.Println("bad index:", err)
		return
	}
	v, ok, err := r.col.GetOrRead(index)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	fmt.Println(v)
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <index>")
		return
	}
	index, err := parseIndex(args[0])
	if err != nil {
		fmt.Println("bad index:", err)
		return
	}
	rc, ok := r.col.(*vecdb.RawColumn[uint64, int64])
	if !ok {
		fmt.Println("error: del is unsupported on a compressed column")
		return
	}
	rc.Delete(index)
	fmt.Println("ok")
}

func (r *REPL) cmdScan(args []string) {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("bad limit:", err)
			return
		}
		limit = n
	}

	it, err := r.col.Iter()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer it.Close()

	count := 0
	for it.Next() {
		index, value := it.Value()
		fmt.Printf("%d\t%d\n", index, value)
		count++
		if limit > 0 && count >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		fmt.Println("error:", err)
	}
}

func (r *REPL) cmdLen() {
	fmt.Printf("stored=%d pushed=%d total=%d dirty=%v\n",
		r.col.StoredLen(), r.col.PushedLen(), r.col.Len(), r.col.IsDirty())
}

func (r *REPL) cmdInfo() {
	fmt.Printf("name=%s format=%s data_version=%d stamp=%s\n",
		r.col.Name(), r.format, r.col.DataVersion(), r.col.Stamp())
	r.cmdLen()
}

func (r *REPL) cmdFlush() {
	if err := r.col.Flush(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (r *REPL) cmdStamp(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: stamp <n>")
		return
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Println("bad stamp:", err)
		return
	}
	rc, ok := r.col.(*vecdb.RawColumn[uint64, int64])
	if !ok {
		fmt.Println("error: stamped flush is unsupported on a compressed column")
		return
	}
	if err := rc.StampedFlushWithChanges(vecdb.Stamp(n)); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (r *REPL) cmdRollback() {
	rc, ok := r.col.(*vecdb.RawColumn[uint64, int64])
	if !ok {
		fmt.Println("error: rollback is unsupported on a compressed column")
		return
	}
	if err := rc.Rollback(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok, stamp now", rc.Stamp())
}

func (r *REPL) cmdBulk(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: bulk <count>")
		return
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("bad count:", err)
		return
	}
	start := r.col.Len()
	for i := 0; i < count; i++ {
		r.col.Push(int64(start + i))
	}
	fmt.Printf("pushed %d values starting at index %d\n", count, start)
}

func (r *REPL) cmdBench(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: bench <count>")
		return
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("bad count:", err)
		return
	}

	start := r.col.Len()
	t0 := time.Now()
	for i := 0; i < count; i++ {
		r.col.Push(int64(i))
	}
	pushElapsed := time.Since(t0)

	t1 := time.Now()
	if err := r.col.Flush(); err != nil {
		fmt.Println("error:", err)
		return
	}
	flushElapsed := time.Since(t1)

	t2 := time.Now()
	for i := start; i < start+count; i++ {
		if _, _, err := r.col.GetOrRead(uint64(i)); err != nil {
			fmt.Println("error:", err)
			return
		}
	}
	readElapsed := time.Since(t2)

	fmt.Printf("push: %d in %s (%.0f/s)\n", count, pushElapsed, float64(count)/pushElapsed.Seconds())
	fmt.Printf("flush: %s\n", flushElapsed)
	fmt.Printf("read: %d in %s (%.0f/s)\n", count, readElapsed, float64(count)/readElapsed.Seconds())
}

func (r *REPL) cmdDiskUsage() {
	var total uint64
	for _, region := range r.db.Regions() {
		m := region.Metadata()
		fmt.Printf("%-32s reserved=%-10d len=%-10d\n", m.ID, m.Reserved, m.Len)
		total += m.Reserved
	}
	fmt.Printf("total reserved: %d bytes\n", total)
}
