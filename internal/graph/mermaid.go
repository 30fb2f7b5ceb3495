package graph

import (
	"fmt"
	"strings"
)

// MermaidOverlay highlights per-cycle state on the rendered graph.
type MermaidOverlay struct {
	Fired   []string
	Blocked []string // ready but not admitted
}

// Mermaid renders the conflict graph as a Mermaid flowchart.
//
// Shapes:
//   - Transaction: [Rectangle]
//   - Method: [[Subroutine]]
//
// Edges:
//   - call: -->
//   - exclusive: --- labelled with its reason
//   - priority: ==> from the higher side
func (g *ConflictGraph) Mermaid(overlay *MermaidOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, tx := range g.order {
		name := g.txNames[tx]
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", mermaidID("tx", name), name)
	}
	for _, name := range g.methodNames {
		fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", mermaidID("m", name), name)
	}

	for tx, callees := range g.txCalls {
		for _, m := range callees {
			fmt.Fprintf(&sb, "    %s --> %s\n", mermaidID("tx", g.txNames[tx]), mermaidID("m", g.methodNames[m]))
		}
	}
	for m, callees := range g.methodCalls {
		for _, c := range callees {
			fmt.Fprintf(&sb, "    %s --> %s\n", mermaidID("m", g.methodNames[m]), mermaidID("m", g.methodNames[c]))
		}
	}

	for _, e := range g.Edges() {
		from, to := mermaidID("tx", e.A), mermaidID("tx", e.B)
		switch e.Kind {
		case EdgeExclusive:
			label := strings.ReplaceAll(e.Reason, "\"", "'")
			fmt.Fprintf(&sb, "    %s -. \"%s\" .- %s\n", from, label, to)
		case EdgePriority:
			fmt.Fprintf(&sb, "    %s ==> %s\n", from, to)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Cycle overlay\n")
		sb.WriteString("    classDef fired fill:#c8e6c9,stroke:#1b5e20,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef blocked fill:#ffcdd2,stroke:#b71c1c,stroke-width:2px,color:#000;\n")
		for _, name := range overlay.Fired {
			fmt.Fprintf(&sb, "    class %s fired;\n", mermaidID("tx", name))
		}
		for _, name := range overlay.Blocked {
			fmt.Fprintf(&sb, "    class %s blocked;\n", mermaidID("tx", name))
		}
	}

	return sb.String()
}

// mermaidID prefixes by kind so a method and a transaction never collide.
func mermaidID(prefix, name string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return prefix + "_" + r.Replace(name)
}
