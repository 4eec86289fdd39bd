package retrieval

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunkerEmptyInput(t *testing.T) {
	c := NewChunker(10, 2)
	if got := c.Split(""); got != nil {
		t.Fatalf("expected no chunks, got %v", got)
	}
	if got := c.Split("   \n\t "); got != nil {
		t.Fatalf("expected no chunks for whitespace, got %v", got)
	}
}

func TestChunkerSingleShortChunk(t *testing.T) {
	c := NewChunker(10, 2)
	got := c.Split("just a few words")
	if len(got) != 1 || got[0] != "just a few words" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestChunkerOverlap(t *testing.T) {
	c := NewChunker(5, 2)
	got := c.Split(words(11))
	want := []string{
		"w0 w1 w2 w3 w4",
		"w3 w4 w5 w6 w7",
		"w6 w7 w8 w9 w10",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestChunkerShortTail(t *testing.T) {
	c := NewChunker(5, 2)
	got := c.Split(words(9))
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %v", got)
	}
	if got[2] != "w6 w7 w8" {
		t.Fatalf("expected short tail chunk, got %q", got[2])
	}
}

func TestChunkerDeterministic(t *testing.T) {
	c := NewChunker(50, 10)
	input := words(321)
	first := c.Split(input)
	second := c.Split(input)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical chunking across runs")
	}
}
