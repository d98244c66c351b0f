package main

import (
	"sync"
	"time"
)

const messageTTL = 3 * time.Second

// Flash holds a user-visible message that clears itself after ttl.
// A newer message resets the clock; an old timer never clears it.
type Flash struct {
	mu    sync.Mutex
	ttl   time.Duration
	text  string
	seq   uint64
	timer *time.Timer
}

func NewFlash(ttl time.Duration) *Flash {
	return &Flash{ttl: ttl}
}

func (f *Flash) Show(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	f.text = text
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if text == "" || f.ttl <= 0 {
		return
	}

	seq := f.seq
	f.timer = time.AfterFunc(f.ttl, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.seq == seq {
			f.text = ""
			f.timer = nil
		}
	})
}

func (f *Flash) Clear() {
	f.Show("")
}

func (f *Flash) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}
