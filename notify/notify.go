// Package notify delivers short user-facing notices: a loading indicator
// while an export runs, then a success, warning or error message.
package notify

import (
	"fmt"
	"io"
	"sync"
)

// User-facing messages.
const (
	MsgLoading     = "Fetching data..."
	MsgNoData      = "No data found. Make sure the page has finished loading."
	MsgFetchFailed = "Failed to fetch data, please retry."
	MsgBusy        = "An export is already running."
)

// Exported is the success message for n exported records.
func Exported(n int) string {
	return fmt.Sprintf("Exported %d records.", n)
}

// Ineligible is the warning shown when the active tab is not the gallery.
func Ineligible(navigateURL string) string {
	return fmt.Sprintf("This page is not the template gallery. Open %s and try again.", navigateURL)
}

// Level classifies a notice.
type Level string

const (
	LevelLoading Level = "loading"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a single delivered message.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier shows notices to the user. Loading returns a function that
// dismisses the loading notice; calling it more than once is harmless.
type Notifier interface {
	Loading(msg string) (done func())
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// Console prints notices as single lines.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a notifier writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Loading(msg string) func() {
	c.print(LevelLoading, msg)
	return func() {}
}

func (c *Console) Success(msg string) { c.print(LevelSuccess, msg) }
func (c *Console) Warning(msg string) { c.print(LevelWarning, msg) }
func (c *Console) Error(msg string)   { c.print(LevelError, msg) }

func (c *Console) print(level Level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "[%s] %s\n", level, msg)
}

// Recorder keeps every notice in memory and tracks loading notices that
// have not been dismissed.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	pending int
}

func (r *Recorder) Loading(msg string) func() {
	r.add(LevelLoading, msg)
	r.mu.Lock()
	r.pending++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.pending--
			r.mu.Unlock()
		})
	}
}

func (r *Recorder) Success(msg string) { r.add(LevelSuccess, msg) }
func (r *Recorder) Warning(msg string) { r.add(LevelWarning, msg) }
func (r *Recorder) Error(msg string)   { r.add(LevelError, msg) }

// Notices returns a copy of the recorded notices in delivery order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Last returns the most recent notice that is not a loading notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notices) - 1; i >= 0; i-- {
		if r.notices[i].Level != LevelLoading {
			return r.notices[i], true
		}
	}
	return Notice{}, false
}

// Pending reports how many loading notices are still shown.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *Recorder) add(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Level: level, Message: msg})
}
