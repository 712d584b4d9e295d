package eventlog

import (
	"testing"
)

func TestRecordAndReadBack(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir, nil)

	pos := [5]float64{1.5, 32, -4.25, 0, 1.57}
	block := [4]int{3, 10, 3, 1}
	l.Record(Entry{Session: "s-1", Player: 1, Nick: "guest1", Kind: KindJoin})
	l.Record(Entry{Session: "s-1", Player: 1, Nick: "guest1", Kind: KindChat, Text: "hello, world"})
	l.Record(Entry{Session: "s-1", Player: 1, Nick: "guest1", Kind: KindBlock, Block: &block})
	l.Record(Entry{Session: "s-1", Player: 1, Nick: "guest1", Kind: KindLeave, Pos: &pos})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read %d entries, want 4", len(got))
	}
	kinds := []string{KindJoin, KindChat, KindBlock, KindLeave}
	for i, e := range got {
		if e.Kind != kinds[i] {
			t.Fatalf("entry %d kind = %q, want %q", i, e.Kind, kinds[i])
		}
		if e.TS == "" || e.Session != "s-1" {
			t.Fatalf("entry %d missing stamp: %+v", i, e)
		}
	}
	if got[1].Text != "hello, world" {
		t.Fatalf("chat text = %q", got[1].Text)
	}
	if got[2].Block == nil || *got[2].Block != block {
		t.Fatalf("block payload lost: %+v", got[2].Block)
	}
	if got[3].Pos == nil || *got[3].Pos != pos {
		t.Fatalf("pos payload lost: %+v", got[3].Pos)
	}
}

func TestReopenAppendsToExistingHourFile(t *testing.T) {
	dir := t.TempDir()

	l := NewLogger(dir, nil)
	l.Record(Entry{Session: "s-1", Player: 1, Nick: "a", Kind: KindJoin})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A restart within the same hour appends a second zstd frame to the
	// same file; readers must see both.
	l = NewLogger(dir, nil)
	l.Record(Entry{Session: "s-2", Player: 2, Nick: "b", Kind: KindJoin})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d entries, want 2", len(got))
	}
	if got[0].Session != "s-1" || got[1].Session != "s-2" {
		t.Fatalf("entries out of order: %+v", got)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Record(Entry{Kind: KindChat})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
