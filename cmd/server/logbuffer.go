package main

import "sync"

const logBufferLines = 1000

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

// NewLogBuffer creates an empty log buffer
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{lines: make([]string, 0, logBufferLines)}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > logBufferLines {
		lb.lines = lb.lines[len(lb.lines)-logBufferLines:]
	}

	return len(p), nil
}

// GetLogs returns a copy of the buffered lines
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
