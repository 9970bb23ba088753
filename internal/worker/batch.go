package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Result is the outcome of one batch input
type Result[O any] struct {
	Index int
	Value O
	Err   error
}

// Batch runs fn over every input on a bounded pool.
// Results come back in input order; inputs not started before ctx ends carry ctx.Err().
func Batch[I, O any](ctx context.Context, concurrency int, inputs []I, fn func(context.Context, I) (O, error)) []Result[O] {
	results := make([]Result[O], len(inputs))
	if len(inputs) == 0 {
		return results
	}
	if concurrency > len(inputs) {
		concurrency = len(inputs)
	}

	pool := NewPool(concurrency, len(inputs))
	pool.Start()

	for i, in := range inputs {
		results[i].Index = i
		err := pool.Submit(ctx, JobFunc(func(context.Context) {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return
			}
			results[i].Value, results[i].Err = fn(ctx, in)
		}))
		if err != nil {
			for j := i; j < len(inputs); j++ {
				results[j] = Result[O]{Index: j, Err: err}
			}
			break
		}
	}

	pool.Drain()
	return results
}

// ReadLines reads non-empty, non-comment lines from a file, dropping duplicates
func ReadLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
