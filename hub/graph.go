package hub

import (
	"github.com/awalterschulze/gographviz"
)

// VisualiseThreadGraph renders the open-thread topology as graphviz dot,
// one edge per thread labelled with the bonded token amount.
func (h *Hub) VisualiseThreadGraph() (string, error) {
	threads, err := h.Threads.GetOpenThreads()
	if err != nil {
		return "", err
	}

	graph := gographviz.NewGraph()
	graph.SetName("Threads")
	graph.SetDir(true)

	for _, t := range threads {
		s := shortAddr(t.Sender)
		r := shortAddr(t.Receiver)
		if !graph.IsNode(s) {
			graph.AddNode("Threads", s, nil)
		}
		if !graph.IsNode(r) {
			graph.AddNode("Threads", r, nil)
		}
		attrs := make(map[string]string)
		attrs["label"] = "\"" + t.BalanceTokenSender.String() + "\""
		graph.AddEdge(s, r, true, attrs)
	}
	return graph.String(), nil
}

func shortAddr(a string) string {
	if len(a) > 8 {
		return a[:8]
	}
	return a
}
