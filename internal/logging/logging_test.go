package logging

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap/zapcore"
)

func TestAliasesAreStable(t *testing.T) {
	a := NewAliases()

	first := a.Alias(peer.ID("one"))
	second := a.Alias(peer.ID("two"))
	if first != "peer-a" || second != "peer-b" {
		t.Fatalf("unexpected aliases %q %q", first, second)
	}
	if again := a.Alias(peer.ID("one")); again != first {
		t.Fatalf("alias changed: %q -> %q", first, again)
	}
}

func TestAliasesPastAlphabet(t *testing.T) {
	a := NewAliases()
	for i := 0; i < 26; i++ {
		a.Alias(peer.ID(string(rune('A' + i))))
	}
	if got := a.Alias(peer.ID("overflow")); got != "peer-27" {
		t.Fatalf("expected peer-27, got %q", got)
	}
}

func TestNewLevels(t *testing.T) {
	quiet, err := New(0, "console")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if quiet.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be disabled at verbosity 0")
	}

	loud, err := New(1, "json")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !loud.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be enabled at verbosity 1")
	}
}
