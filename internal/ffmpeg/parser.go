package ffmpeg

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"convconv/internal/entity"
)

var (
	durationRe   = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})`)
	statusLineRe = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\S*.*bitrate=\s*(\S+).*speed=\s*(\S+)`)
	keyValueRe   = regexp.MustCompile(`^\s*([a-z0-9_]+)=\s*(\S*)\s*$`)
)

// ParseDuration finds the first "Duration: HH:MM:SS" in text and returns it in seconds.
func ParseDuration(text string) (float64, bool) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	secs, ok := clockSeconds(m[1], m[2], m[3])
	if !ok {
		return 0, false
	}
	return secs, true
}

// ParseStatusLine decodes a human readable stats line
// ("frame=.. time=HH:MM:SS.xx bitrate=.. speed=..").
func ParseStatusLine(line string, totalSeconds float64) (entity.ProgressSample, bool) {
	m := statusLineRe.FindStringSubmatch(line)
	if m == nil {
		return entity.ProgressSample{}, false
	}
	current, ok := clockSeconds(m[1], m[2], m[3])
	if !ok {
		return entity.ProgressSample{}, false
	}
	return entity.ProgressSample{
		Percent: Percent(current, totalSeconds),
		Time:    fmt.Sprintf("%s:%s:%s", m[1], m[2], m[3]),
		Bitrate: m[4],
		Speed:   m[5],
	}, true
}

// ParseProgressLine decodes an "out_time_ms=<microseconds>" line of the
// machine readable progress stream.
func ParseProgressLine(line string, totalSeconds float64) (entity.ProgressSample, bool) {
	key, value, ok := splitKeyValue(line)
	if !ok || key != "out_time_ms" {
		return entity.ProgressSample{}, false
	}
	micros, err := strconv.ParseInt(value, 10, 64)
	if err != nil || micros < 0 {
		return entity.ProgressSample{}, false
	}
	current := float64(micros) / 1_000_000
	return entity.ProgressSample{
		Percent: Percent(current, totalSeconds),
		Time:    FormatClock(current),
	}, true
}

// Percent is round(current/total*100) clamped to [0,100]; 0 when total is unknown.
func Percent(currentSeconds, totalSeconds float64) int {
	if totalSeconds <= 0 || math.IsNaN(currentSeconds) {
		return 0
	}
	p := math.Round(currentSeconds / totalSeconds * 100)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// FormatClock renders whole seconds as HH:MM:SS.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func clockSeconds(h, m, s string) (float64, bool) {
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return float64(hours*3600 + minutes*60 + seconds), true
}

func splitKeyValue(line string) (string, string, bool) {
	m := keyValueRe.FindStringSubmatch(line)
	if m == nil || m[2] == "" {
		return "", "", false
	}
	return m[1], m[2], true
}

// Tracker folds both output formats of one encoder run into a stream of
// samples. It remembers the first discovered duration and the latest
// bitrate/speed reported by the key=value stream. A key=value sample is
// emitted at the block's progress= line, so it carries that block's speed.
// Not safe for concurrent use.
type Tracker struct {
	duration      float64
	durationKnown bool
	bitrate       string
	speed         string
	pending       *entity.ProgressSample
	partial       string
	onMalformed   func(line string)
}

// NewTracker returns a tracker. A positive durationHint is used as the percent
// denominator and suppresses duration discovery.
func NewTracker(durationHint float64) *Tracker {
	t := &Tracker{}
	if durationHint > 0 {
		t.duration = durationHint
		t.durationKnown = true
	}
	return t
}

// OnMalformed registers a hook called with progress lines whose value cannot be parsed.
func (t *Tracker) OnMalformed(fn func(line string)) {
	t.onMalformed = fn
}

// Duration returns the total duration in seconds, 0 when never discovered.
func (t *Tracker) Duration() float64 {
	return t.duration
}

// Feed consumes one output chunk. A trailing line without terminator is held
// until the next chunk or Flush.
func (t *Tracker) Feed(chunk string) []entity.ProgressSample {
	data := t.partial + chunk
	t.partial = ""

	cut := strings.LastIndexAny(data, "\r\n")
	if cut < 0 {
		t.partial = data
		return nil
	}
	t.partial = data[cut+1:]
	return t.consume(data[:cut])
}

// Flush parses any held partial line and emits a block left without its progress= line.
func (t *Tracker) Flush() []entity.ProgressSample {
	data := t.partial
	t.partial = ""

	var out []entity.ProgressSample
	if data != "" {
		out = t.consume(data)
	}
	if sample, ok := t.takePending(); ok {
		out = append(out, sample)
	}
	return out
}

func (t *Tracker) consume(data string) []entity.ProgressSample {
	var out []entity.ProgressSample
	lines := strings.FieldsFunc(data, func(r rune) bool { return r == '\n' || r == '\r' })
	for _, line := range lines {
		if sample, ok := t.line(line); ok {
			out = append(out, sample)
		}
	}
	return out
}

func (t *Tracker) line(line string) (entity.ProgressSample, bool) {
	if !t.durationKnown {
		if d, ok := ParseDuration(line); ok {
			t.duration = d
			t.durationKnown = true
			return entity.ProgressSample{}, false
		}
	}

	if sample, ok := ParseStatusLine(line, t.duration); ok {
		return sample, true
	}

	key, value, ok := splitKeyValue(line)
	if !ok {
		return entity.ProgressSample{}, false
	}
	switch key {
	case "bitrate":
		t.bitrate = value
	case "speed":
		t.speed = value
	case "out_time_ms":
		sample, ok := ParseProgressLine(line, t.duration)
		if !ok {
			if t.onMalformed != nil {
				t.onMalformed(line)
			}
			return entity.ProgressSample{}, false
		}
		// a block without progress= is closed by the next out_time_ms
		prev, had := t.takePending()
		t.pending = &sample
		return prev, had
	case "progress":
		return t.takePending()
	}
	return entity.ProgressSample{}, false
}

func (t *Tracker) takePending() (entity.ProgressSample, bool) {
	if t.pending == nil {
		return entity.ProgressSample{}, false
	}
	sample := *t.pending
	t.pending = nil
	sample.Bitrate = t.bitrate
	sample.Speed = t.speed
	return sample, true
}
