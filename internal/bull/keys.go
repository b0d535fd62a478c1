package bull

import "strings"

// keys holds the fully qualified Redis keys of one queue.
type keys struct {
	base       string // "<prefix>:<name>:"
	wait       string
	paused     string
	metaPaused string
	active     string
	delayed    string
	priority   string
	completed  string
	failed     string
	resumed    string
}

func newKeys(prefix, name string) keys {
	base := prefix + ":" + name + ":"
	return keys{
		base:       base,
		wait:       base + "wait",
		paused:     base + "paused",
		metaPaused: base + "meta-paused",
		active:     base + "active",
		delayed:    base + "delayed",
		priority:   base + "priority",
		completed:  base + "completed",
		failed:     base + "failed",
		resumed:    base + "resumed",
	}
}

// job returns the hash key of a job.
func (k keys) job(id string) string { return k.base + id }

// channel returns the pub/sub channel Bull publishes an event on.
func (k keys) channel(ev Event) string { return k.base + string(ev) }

// MetaPausedKey returns the key whose value "1" marks a queue as paused.
func MetaPausedKey(prefix, name string) string {
	return prefix + ":" + name + ":meta-paused"
}

// escapeGlob quotes the characters PSUBSCRIBE treats as glob syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
