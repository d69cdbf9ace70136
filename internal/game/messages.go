package game

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
)

// Ref renders an inline entity reference the UI layer resolves to a display
// name. The engine itself never needs display strings.
func Ref(id entities.EntityID) string {
	return fmt.Sprintf("[[%s]]", id)
}

// RefAmount renders an entity reference with an amount.
func RefAmount(id entities.EntityID, amount decimal.Decimal) string {
	return fmt.Sprintf("[[%s|%s]]", id, amount)
}

// MessageBuilder accumulates the three message channels of a running action.
// A non-empty error channel fails the whole action.
type MessageBuilder struct {
	errors   []string
	warnings []string
	info     []string
}

func (b *MessageBuilder) Errorf(format string, args ...any) {
	b.errors = append(b.errors, fmt.Sprintf(format, args...))
}

func (b *MessageBuilder) Warnf(format string, args ...any) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
}

func (b *MessageBuilder) Infof(format string, args ...any) {
	b.info = append(b.info, fmt.Sprintf(format, args...))
}

// Section is a scoped bulleted list under a header. End flushes it; flushing
// must happen on every exit path, so callers defer it.
type Section struct {
	builder *MessageBuilder
	target  *[]string
	header  string
	lines   []string
	done    bool
}

// BeginSection opens a bulleted info list under header.
func (b *MessageBuilder) BeginSection(header string) *Section {
	return &Section{builder: b, target: &b.info, header: header}
}

// BeginErrorSection opens a bulleted error list under header. A section with
// at least one line fails the action.
func (b *MessageBuilder) BeginErrorSection(header string) *Section {
	return &Section{builder: b, target: &b.errors, header: header}
}

func (s *Section) Addf(format string, args ...any) {
	s.lines = append(s.lines, fmt.Sprintf(format, args...))
}

// End flushes the section. Empty sections emit nothing. End is idempotent.
func (s *Section) End() {
	if s.done {
		return
	}
	s.done = true
	if len(s.lines) == 0 {
		return
	}
	*s.target = append(*s.target, s.header)
	for _, line := range s.lines {
		*s.target = append(*s.target, "- "+line)
	}
}

func (b *MessageBuilder) HasErrors() bool { return len(b.errors) > 0 }

// RenderErrors joins the error channel into the failure message.
func (b *MessageBuilder) RenderErrors() string {
	return strings.Join(b.errors, "\n")
}

// Render joins warnings and info into the result message.
func (b *MessageBuilder) Render() string {
	lines := make([]string, 0, len(b.warnings)+len(b.info))
	lines = append(lines, b.warnings...)
	lines = append(lines, b.info...)
	return strings.Join(lines, "\n")
}
