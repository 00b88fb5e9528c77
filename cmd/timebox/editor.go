package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"timebox/internal/model"
	"timebox/internal/planner"
)

type action int

const (
	actPriority action = iota
	actNote
	actTask
	actDate
	actShow
	actSave
	actHelp
	actQuit
)

// command is one parsed input line of the editor.
type command struct {
	action action
	index  int // priority, 0-based
	hour   int
	slot   model.Slot
	text   string
	date   time.Time
}

var errUnknown = errors.New("unknown command, try `help`")

const editorHelp = `commands:
  p1 <text> .. p3 <text>   set a top priority
  note <text>              replace the brain dump
  9:00 <text>, 9:30 <text> set a half-hour task (empty text clears it)
  date <yyyy-mm-dd|today>  switch day
  show                     print the plan
  save                     save now
  quit                     save and exit`

// parseLine turns one line of input into a command. now resolves "today".
func parseLine(line string, now time.Time) (command, error) {
	line = strings.TrimSpace(line)
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(head) {
	case "p1", "p2", "p3":
		return command{action: actPriority, index: int(head[1] - '1'), text: rest}, nil
	case "note":
		return command{action: actNote, text: rest}, nil
	case "date":
		if rest == "" || rest == "today" {
			return command{action: actDate, date: model.Day(now)}, nil
		}
		d, err := model.ParseDate(rest)
		if err != nil {
			return command{}, err
		}
		return command{action: actDate, date: d}, nil
	case "show", "":
		return command{action: actShow}, nil
	case "save":
		return command{action: actSave}, nil
	case "help", "?":
		return command{action: actHelp}, nil
	case "quit", "q", "exit":
		return command{action: actQuit}, nil
	}

	if h, m, ok := strings.Cut(head, ":"); ok {
		hour, err := strconv.Atoi(h)
		if err != nil {
			return command{}, fmt.Errorf("bad hour %q", h)
		}
		slot, err := model.ParseSlot(m)
		if err != nil {
			return command{}, err
		}
		return command{action: actTask, hour: hour, slot: slot, text: rest}, nil
	}
	return command{}, errUnknown
}

// apply runs an editing command against the session. It reports whether
// the editor should stop.
func apply(s *planner.Session, c command, w io.Writer) (bool, error) {
	switch c.action {
	case actPriority:
		return false, s.SetPriority(c.index, c.text)
	case actNote:
		return false, s.SetBrainDump(c.text)
	case actTask:
		return false, s.SetTask(c.hour, c.slot, c.text)
	case actDate:
		return false, s.SelectDate(c.date)
	case actShow:
		render(w, s.Date(), s.Plan(), s.Settings())
	case actHelp:
		fmt.Fprintln(w, editorHelp)
	case actQuit:
		return true, nil
	}
	return false, nil
}

// render prints a plan as plain text.
func render(w io.Writer, date time.Time, p model.DayPlan, st planner.Settings) {
	fmt.Fprintf(w, "== %s ==\n", date.Format("Monday, 2 January 2006"))
	fmt.Fprintln(w, "Top priorities:")
	for i, v := range p.TopPriorities {
		fmt.Fprintf(w, "  %d. %s\n", i+1, v)
	}
	fmt.Fprintln(w, "Brain dump:")
	for _, l := range strings.Split(p.BrainDump, "\n") {
		fmt.Fprintf(w, "  %s\n", l)
	}
	fmt.Fprintln(w, "Schedule:")
	for _, h := range st.Hours() {
		t := p.TimeSlotTasks[h]
		fmt.Fprintf(w, "  %2d:00  %s\n", h, t.TopOfHour)
		fmt.Fprintf(w, "  %2d:30  %s\n", h, t.HalfHour)
	}
}
