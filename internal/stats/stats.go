package stats

import (
	"sync"
	"time"
)

const (
	CompileStart = "compileStart"
	Compiled     = "compiled"
)

type TimestampEvent struct {
	Label string
	Time  time.Time
}

// FileStat collects the timestamps of one compiled file. Only the goroutine
// that compiles the file records into it, but reads may happen from the
// goroutine that builds the report.
type FileStat struct {
	Filename    string
	PackageName string

	mutex      sync.Mutex
	timestamps []TimestampEvent
	now        func() time.Time
}

func NewFileStat(filename string, now func() time.Time) *FileStat {
	if now == nil {
		now = time.Now
	}
	return &FileStat{Filename: filename, now: now}
}

func (s *FileStat) Record(label string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.timestamps = append(s.timestamps, TimestampEvent{Label: label, Time: s.now()})
}

func (s *FileStat) Timestamps() []TimestampEvent {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]TimestampEvent(nil), s.timestamps...)
}

// Duration returns the time between the first event labeled "to" and either
// the first event labeled "from" or, without "from", the event right before
// "to". Missing events give zero.
func Duration(timestamps []TimestampEvent, to string, from ...string) time.Duration {
	toIndex := -1
	for i, ts := range timestamps {
		if ts.Label == to {
			toIndex = i
			break
		}
	}
	if toIndex < 0 {
		return 0
	}

	fromIndex := toIndex - 1
	if len(from) > 0 {
		fromIndex = -1
		for i, ts := range timestamps {
			if ts.Label == from[0] {
				fromIndex = i
				break
			}
		}
	}
	if fromIndex < 0 {
		return 0
	}

	return timestamps[toIndex].Time.Sub(timestamps[fromIndex].Time)
}
