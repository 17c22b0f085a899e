// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/bureau-foundation/parlor/lib/ref"
	"github.com/bureau-foundation/parlor/messaging"
)

// theme is the palette for command output, in ANSI 256-color codes.
type theme struct {
	FaintText  lipgloss.Color
	Heading    lipgloss.Color
	Sender     lipgloss.Color
	SystemText lipgloss.Color
	Label      lipgloss.Color
}

var defaultTheme = theme{
	FaintText:  "243",
	Heading:    "75",
	Sender:     "114",
	SystemText: "245",
	Label:      "252",
}

// printer renders rooms, timelines and key/value fields to one writer.
// Output is styled only when the writer is a terminal and NO_COLOR is
// unset.
type printer struct {
	out io.Writer
	now time.Time

	faint   lipgloss.Style
	heading lipgloss.Style
	sender  lipgloss.Style
	system  lipgloss.Style
	label   lipgloss.Style
}

func newPrinter(w io.Writer, now time.Time) *printer {
	renderer := lipgloss.NewRenderer(w)
	if !colorEnabled(w) {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return &printer{
		out:     w,
		now:     now,
		faint:   renderer.NewStyle().Foreground(defaultTheme.FaintText),
		heading: renderer.NewStyle().Foreground(defaultTheme.Heading).Bold(true),
		sender:  renderer.NewStyle().Foreground(defaultTheme.Sender).Bold(true),
		system:  renderer.NewStyle().Foreground(defaultTheme.SystemText).Italic(true),
		label:   renderer.NewStyle().Foreground(defaultTheme.Label).Bold(true),
	}
}

func colorEnabled(w io.Writer) bool {
	if termenv.EnvNoColor() {
		return false
	}
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func (p *printer) field(label, value string) {
	fmt.Fprintf(p.out, "%s %s\n", p.label.Render(label+":"), value)
}

func (p *printer) rooms(rooms []messaging.PublicRoom) {
	if len(rooms) == 0 {
		fmt.Fprintln(p.out, p.faint.Render("No public rooms"))
		return
	}
	for index, room := range rooms {
		if index > 0 {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintf(p.out, "%s  %s\n",
			p.heading.Render(room.DisplayName()),
			p.faint.Render(memberCount(room.NumJoinedMembers)))

		identifiers := room.RoomID.String()
		if room.CanonicalAlias != "" {
			identifiers = room.CanonicalAlias + "  " + identifiers
		}
		fmt.Fprintf(p.out, "  %s\n", p.faint.Render(identifiers))
		fmt.Fprintf(p.out, "  %s\n", firstLine(room.DisplayTopic()))
	}
}

// timeline writes events oldest first. Bookkeeping events are skipped
// unless all is set.
func (p *printer) timeline(events []messaging.Event, all bool) {
	shown := 0
	for _, event := range events {
		if !all && !event.Visible() {
			continue
		}
		shown++

		timestamp := p.faint.Render(formatTimestamp(event.Timestamp(), p.now))
		sender := p.sender.Render(senderName(event.Sender))
		body := firstLine(event.Body())
		if !event.IsTextMessage() {
			body = p.system.Render(body)
		}
		fmt.Fprintf(p.out, "%s  %s  %s\n", timestamp, sender, body)
	}
	if shown == 0 {
		fmt.Fprintln(p.out, p.faint.Render("No messages"))
	}
}

func senderName(sender ref.UserID) string {
	if sender.IsZero() {
		return "?"
	}
	return sender.Localpart()
}

func memberCount(count int) string {
	if count == 1 {
		return "1 member"
	}
	return humanize.Comma(int64(count)) + " members"
}

// firstLine returns text up to its first newline, marking the cut with
// an ellipsis.
func firstLine(text string) string {
	line, _, cut := strings.Cut(text, "\n")
	if cut {
		return line + " …"
	}
	return line
}

// formatTimestamp renders then relative to now: "Just now" under a
// minute, "N minutes ago" under an hour, the clock time today,
// "Yesterday 15:04", the weekday within a week, and a date beyond.
// Times in the future render as "Just now".
func formatTimestamp(then, now time.Time) string {
	age := now.Sub(then)
	switch {
	case age < time.Minute:
		return "Just now"
	case age < time.Hour:
		return humanize.RelTime(then, now, "ago", "from now")
	}

	then = then.In(now.Location())
	switch {
	case sameDay(then, now):
		return then.Format("15:04")
	case sameDay(then, now.AddDate(0, 0, -1)):
		return "Yesterday " + then.Format("15:04")
	case age < 7*24*time.Hour:
		return then.Format("Mon 15:04")
	case then.Year() == now.Year():
		return then.Format("Jan 2")
	default:
		return then.Format("Jan 2, 2006")
	}
}

func sameDay(a, b time.Time) bool {
	aYear, aMonth, aDay := a.Date()
	bYear, bMonth, bDay := b.Date()
	return aYear == bYear && aMonth == bMonth && aDay == bDay
}
