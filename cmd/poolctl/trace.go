package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// traceOp is one line of an allocation trace:
//
//	a <id> <size>           allocate
//	c <id> <count> <size>   allocate zeroed
//	r <id> <size>           resize
//	f <id>                  free
//
// Blank lines and lines starting with '#' are ignored.
type traceOp struct {
	Kind  byte
	ID    string
	Count int
	Size  int
	Line  int
}

func parseTrace(r io.Reader) ([]traceOp, error) {
	var ops []traceOp
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		op, err := parseTraceLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		op.Line = line
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

func parseTraceLine(text string) (traceOp, error) {
	fields := strings.Fields(text)
	if len(fields[0]) != 1 {
		return traceOp{}, fmt.Errorf("unknown op %q", fields[0])
	}
	op := traceOp{Kind: fields[0][0]}

	want := map[byte]int{'a': 3, 'c': 4, 'r': 3, 'f': 2}[op.Kind]
	if want == 0 {
		return traceOp{}, fmt.Errorf("unknown op %q", fields[0])
	}
	if len(fields) != want {
		return traceOp{}, fmt.Errorf("op %q takes %d fields, got %d", fields[0], want, len(fields))
	}
	op.ID = fields[1]

	var err error
	switch op.Kind {
	case 'a', 'r':
		op.Size, err = strconv.Atoi(fields[2])
	case 'c':
		if op.Count, err = strconv.Atoi(fields[2]); err == nil {
			op.Size, err = strconv.Atoi(fields[3])
		}
	}
	if err != nil {
		return traceOp{}, fmt.Errorf("bad number: %w", err)
	}
	return op, nil
}
