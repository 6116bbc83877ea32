package chunk

import (
	"bytes"
	"testing"
)

func TestEqualsIgnoreCaseASCII(t *testing.T) {
	c := NewView([]byte("Content-Length"), 0, len("Content-Length"))
	if !c.EqualsIgnoreCaseASCII([]byte("content-length")) {
		t.Fatalf("expected case-insensitive match")
	}
	if c.EqualsIgnoreCaseASCII([]byte("content-type")) {
		t.Fatalf("unexpected match")
	}
}

func TestAppendGrowsAndCopies(t *testing.T) {
	c := NewOwned(-1)
	defer c.Release()
	if err := c.Append([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if err := c.Append([]byte("world")); err != nil {
		t.Fatal(err)
	}
	if got := string(c.Bytes()); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

type sliceSink struct{ out bytes.Buffer }

func (s *sliceSink) FlushChunk(c *ByteChunk, p []byte) (int, error) {
	return s.out.Write(p)
}

func TestAppendFlushesWhenLimitHit(t *testing.T) {
	sink := &sliceSink{}
	c := NewOwned(4)
	defer c.Release()
	c.SetOutputChannel(sink)

	if err := c.Append([]byte("abcdefgh")); err != nil {
		t.Fatal(err)
	}
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	if sink.out.String() != "abcdefgh" {
		t.Fatalf("sink got %q", sink.out.String())
	}
	if c.Len() != 0 {
		t.Fatalf("expected chunk drained, len=%d", c.Len())
	}
}

func TestAppendNoSinkOverflows(t *testing.T) {
	c := NewOwned(4)
	defer c.Release()
	if err := c.Append([]byte("abcde")); err == nil {
		t.Fatalf("expected overflow error with no sink")
	}
}

func TestRecycleClearsCursorsAndChannel(t *testing.T) {
	sink := &sliceSink{}
	c := NewView([]byte("abc"), 0, 3)
	c.SetOutputChannel(sink)
	c.Recycle()
	if c.start != 0 || c.end != 0 {
		t.Fatalf("expected cursors reset, got start=%d end=%d", c.start, c.end)
	}
	if c.out != nil {
		t.Fatalf("expected output channel cleared")
	}
}
