package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/mtzanidakis/counterman/internal/config"
	"github.com/mtzanidakis/counterman/internal/store"
)

func parseFileFlag(args []string, usage string) (string, error) {
	var path string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return "", fmt.Errorf("missing value for -f")
			}
			i++
			path = args[i]
		}
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		return "", fmt.Errorf("missing -f flag")
	}
	return path, nil
}

func runExport(args []string) error {
	outputPath, err := parseFileFlag(args, "counterman export -f <history.jsonl.zst>")
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	n, err := exportMessages(db, f)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	fmt.Printf("Export complete: %d messages\n", n)
	return nil
}

// exportMessages writes every stored message, decrypted, as one JSON
// object per line in a zstd stream.
func exportMessages(db *store.Store, w io.Writer) (int, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	enc := json.NewEncoder(zw)
	n := 0
	for m, err := range db.AllMessages() {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(m); err != nil {
			return n, fmt.Errorf("encode message %d: %w", m.ID, err)
		}
		n++
	}

	// Close explicitly to catch write errors
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("close zstd: %w", err)
	}
	return n, nil
}

func runImport(args []string) error {
	inputPath, err := parseFileFlag(args, "counterman import -f <history.jsonl.zst>")
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	n, err := importMessages(db, f)
	if err != nil {
		return err
	}
	fmt.Printf("Import complete: %d messages\n", n)
	return nil
}

// importMessages appends the messages of an export. Ids are reassigned;
// timestamps and conversation keys are kept.
func importMessages(db *store.Store, r io.Reader) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	dec := json.NewDecoder(bufio.NewReader(zr))
	n := 0
	for dec.More() {
		var m store.Message
		if err := dec.Decode(&m); err != nil {
			return n, fmt.Errorf("decode message %d: %w", n+1, err)
		}
		m.ID = 0
		if err := db.SaveMessage(&m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
