package messaging

import (
	"context"
	"fmt"
	"io"
)

// Opener hands a deep link to whatever can act on it (browser, phone, log).
type Opener interface {
	Open(ctx context.Context, link string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, link string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, link string) error { return f(ctx, link) }

// WriterOpener prints each link on its own line.
type WriterOpener struct {
	W io.Writer
}

// Open writes link to W.
func (o WriterOpener) Open(ctx context.Context, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(o.W, link)
	return err
}
