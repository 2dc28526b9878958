// Package logger defines the printf-like logging hook used by the cache.
package logger

// Logf is the basic logger type: a printf-like func. Like log.Printf, the
// format need not end in a newline. Logf functions must be safe for
// concurrent use.
type Logf func(format string, args ...any)

// Write implements the io.Writer interface.
func (f Logf) Write(p []byte) (n int, err error) {
	f("%s", p)
	return len(p), nil
}

// Discard is a Logf that drops everything.
func Discard(string, ...any) {}

// OrDiscard returns f, or Discard when f is nil.
func OrDiscard(f Logf) Logf {
	if f == nil {
		return Discard
	}
	return f
}
