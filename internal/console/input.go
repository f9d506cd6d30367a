package console

import (
	"bufio"
	"context"
	"io"
)

// ReadLines streams the lines of r until EOF or ctx is done. The channel is
// closed when reading stops.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
