package ir

import (
	"fmt"
	"sync"
)

// Severity of a Diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// A Diagnostic is a message reported against a module.
type Diagnostic struct {
	Severity Severity
	Function string
	Message  string
}

func (d Diagnostic) String() string {
	if d.Function != "" {
		return fmt.Sprintf("%s: %s: %s", d.Severity, d.Function, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// Diagnostics collects the messages reported while compiling a module.
// The zero value is ready to use.
type Diagnostics struct {
	mu     sync.Mutex
	list   []Diagnostic
	errors int
}

// Errorf reports an error attributed to fn, which may be nil.
func (d *Diagnostics) Errorf(fn *Function, format string, args ...any) {
	d.report(SeverityError, fn, fmt.Sprintf(format, args...))
}

// Warnf reports a warning attributed to fn, which may be nil.
func (d *Diagnostics) Warnf(fn *Function, format string, args ...any) {
	d.report(SeverityWarning, fn, fmt.Sprintf(format, args...))
}

func (d *Diagnostics) report(sev Severity, fn *Function, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	diag := Diagnostic{Severity: sev, Message: msg}
	if fn != nil {
		diag.Function = fn.Name
	}
	d.list = append(d.list, diag)
	if sev == SeverityError {
		d.errors++
	}
}

// HadError reports whether any error has been reported.
func (d *Diagnostics) HadError() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errors > 0
}

// All returns a copy of every reported diagnostic.
func (d *Diagnostics) All() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Diagnostic(nil), d.list...)
}
