package source

import (
	"context"
	"testing"
)

type nopSource struct{}

func (nopSource) Configure(any) error { return nil }
func (nopSource) Pull(context.Context, Partition, string, int64, int) (PullResult, error) {
	return PullResult{}, nil
}
func (nopSource) Partitions(string) ([]Partition, error) { return nil, nil }
func (nopSource) Close() error                           { return nil }

func TestRegistry(t *testing.T) {
	Register("nop", func() Source { return nopSource{} })
	s, err := New("nop")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(nopSource); !ok {
		t.Fatalf("unexpected driver %T", s)
	}
	if _, err := New("bogus"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestPartitionString(t *testing.T) {
	p := Partition{Topic: "orders", Queue: 3}
	if p.String() != "orders#3" {
		t.Fatalf("String = %q", p.String())
	}
}

func TestPullStatusString(t *testing.T) {
	cases := map[PullStatus]string{
		PullFound:         "FOUND",
		PullNoMatched:     "NO_MATCHED",
		PullNoNew:         "NO_NEW",
		PullOffsetIllegal: "OFFSET_ILLEGAL",
		PullStatus(9):     "PullStatus(9)",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
