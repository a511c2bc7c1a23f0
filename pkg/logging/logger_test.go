package logging

import "testing"

func TestNewLoggerWithService(t *testing.T) {
	l := NewLoggerWithService("drumbeat")
	entry := l.WithField("content_id", "abc")
	if entry == nil {
		t.Fatalf("expected non-nil entry")
	}
}
