package hub

import (
	"math/big"
	"strings"
	"testing"

	"github.com/spilman/hub/chanstate"
)

func TestVisualiseThreadGraph(t *testing.T) {
	r := newTestRig(t)
	r.store.openThreads["aaaabbbbcccc|ddddeeeeffff"] = chanstate.ThreadState{
		Sender:             "aaaabbbbcccc",
		Receiver:           "ddddeeeeffff",
		BalanceTokenSender: big.NewInt(42),
	}

	dot, err := r.hub.VisualiseThreadGraph()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"digraph Threads", "aaaabbbb", "ddddeeee", "42"} {
		if !strings.Contains(dot, want) {
			t.Fatalf("dot output missing %q:\n%s", want, dot)
		}
	}
}
