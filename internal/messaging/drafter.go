package messaging

import (
	"context"
	"fmt"

	"academycore/internal/textgen"
)

// Drafter asks a text generator to personalise a templated message and
// falls back to the template when generation is unavailable.
type Drafter struct {
	gen *textgen.Degrading
}

// NewDrafter wraps gen; a nil gen always yields the template text.
func NewDrafter(gen *textgen.Degrading) *Drafter {
	return &Drafter{gen: gen}
}

// Draft returns the message for kind. The second result reports whether the
// text came from the generator.
func (d *Drafter) Draft(ctx context.Context, kind Kind, details Details) (string, bool, error) {
	base, err := Render(kind, details)
	if err != nil {
		return "", false, err
	}
	if d == nil || d.gen == nil {
		return base, false, nil
	}
	prompt := fmt.Sprintf("Rewrite this WhatsApp message to a parent so it is warm, polite and under 60 words. "+
		"Keep every fact unchanged and reply with the message only.\n\n%s", base)
	text := d.gen.Generate(ctx, prompt)
	if text == textgen.Unavailable {
		return base, false, nil
	}
	return text, true, nil
}
