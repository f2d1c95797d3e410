package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/consult/pkg/trace"
)

// GenerateMermaid produces a Mermaid flowchart of a classified rule trace.
// Facts and conclusions share one node namespace, so chained rules connect:
// - Fact: ["Rectangle"], derivable facts as [/Parallelogram/]
// - Rule: {{Hexagon}} styled by its display state
// - Conclusion: (["Stadium"]), bold when derived
func GenerateMermaid(res trace.Result) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	ids := make(map[string]string)
	derivable := make(map[string]bool)
	concluded := make(map[string]bool)
	var order []string
	nodeID := func(fact string) string {
		if id, ok := ids[fact]; ok {
			return id
		}
		id := fmt.Sprintf("n%d", len(ids))
		ids[fact] = id
		order = append(order, fact)
		return id
	}

	var edges []string
	var derived []string
	for _, e := range res.Relevant {
		r := e.Rule
		rid := "r_" + sanitizeMermaidID(r.RuleID)
		fmt.Fprintf(&sb, "    %s{{\"%s %s\"}}\n", rid, escape(r.RuleID), r.Operator)

		for _, c := range r.Conditions {
			from := nodeID(c.FactName)
			if c.IsDerivable {
				derivable[c.FactName] = true
			}
			edges = append(edges, fmt.Sprintf("    %s -- \"%s\" --> %s", from, c.Status, rid))
		}
		to := nodeID(r.Conclusion)
		concluded[r.Conclusion] = true
		edges = append(edges, fmt.Sprintf("    %s --> %s", rid, to))
		if r.ConclusionDerived {
			derived = append(derived, to)
		}
	}

	for _, fact := range order {
		opener, closer := "[", "]"
		switch {
		case concluded[fact]:
			opener, closer = "([", "])"
		case derivable[fact]:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", ids[fact], opener, escape(fact), closer)
	}
	for _, e := range edges {
		sb.WriteString(e + "\n")
	}

	if len(res.Relevant) == 0 {
		return sb.String()
	}

	// Force black text (color:#000) for contrast regardless of theme
	sb.WriteString("\n    %% State Styles\n")
	sb.WriteString("    classDef fired fill:#dbeafe,stroke:#2563eb,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef evaluating fill:#ffedd5,stroke:#fb923c,color:#000;\n")
	sb.WriteString("    classDef unfireable fill:#fee2e2,stroke:#dc2626,stroke-dasharray:4,color:#000;\n")
	sb.WriteString("    classDef pending fill:#fff,stroke:#9ca3af,color:#000;\n")
	sb.WriteString("    classDef focused stroke:#fbc02d,stroke-width:4px;\n")
	sb.WriteString("    classDef derived font-weight:bold,color:#000;\n")

	for _, e := range res.Relevant {
		rid := "r_" + sanitizeMermaidID(e.Rule.RuleID)
		fmt.Fprintf(&sb, "    class %s %s;\n", rid, e.State)
		if e.Focused {
			fmt.Fprintf(&sb, "    class %s focused;\n", rid)
		}
	}
	for _, id := range dedupe(derived) {
		fmt.Fprintf(&sb, "    class %s derived;\n", id)
	}

	return sb.String()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
