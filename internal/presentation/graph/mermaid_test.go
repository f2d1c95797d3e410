package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/consult/internal/presentation/graph"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/trace"
	"github.com/stretchr/testify/assert"
)

func chained() trace.Result {
	rules := []domain.Rule{
		{
			RuleID:   "R-1",
			Operator: domain.OperatorAnd,
			Conditions: []domain.Condition{
				{FactName: "投資がある", Status: domain.StatusSatisfied},
				{FactName: "管理職", Status: domain.StatusUnknown, IsDerivable: true},
			},
			Conclusion: "E条件",
			IsFireable: true,
		},
		{
			RuleID:            "R2",
			Operator:          domain.OperatorOr,
			Conditions:        []domain.Condition{{FactName: "E条件", Status: domain.StatusUnknown}},
			Conclusion:        `"Eビザ"`,
			ConclusionDerived: true,
			IsFired:           true,
			IsFireable:        true,
		},
	}
	return trace.Classify(rules, []string{"R2"}, "管理職")
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(chained())

	tests := []struct {
		name     string
		contains []string
	}{
		{
			name: "Rule Shapes And ID Sanitization",
			contains: []string{
				`r_R_1{{"R-1 AND"}}`,
				`r_R2{{"R2 OR"}}`,
			},
		},
		{
			name: "Fact Shapes",
			contains: []string{
				`n0["投資がある"]`,
				`n1[/"管理職"/]`,
				`n2(["E条件"])`,
			},
		},
		{
			name: "Chained Conclusion Reuses Node",
			contains: []string{
				`r_R_1 --> n2`,
				`n2 -- "unknown" --> r_R2`,
			},
		},
		{
			name: "Quote Escaping",
			contains: []string{
				`n3(["'Eビザ'"])`,
			},
		},
		{
			name: "State Styles",
			contains: []string{
				"class r_R_1 evaluating;",
				"class r_R_1 focused;",
				"class r_R2 fired;",
				"class n3 derived;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}

	assert.Equal(t, 1, strings.Count(out, `n2(["E条件"])`), "node declared once")
}

func TestGenerateMermaid_Empty(t *testing.T) {
	out := graph.GenerateMermaid(trace.Classify(nil, nil, ""))
	assert.Equal(t, "graph LR\n", out)
}
