package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/consult/internal/presentation/tui"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionMarkdown(t *testing.T) {
	s := domain.NewSession("s1")
	s.Targets = []domain.Target{"E", "L", "B"}
	s.MultiTarget = true
	s.CurrentTarget = "L"
	s.History = []string{"Q1", "Q2"}
	s.CurrentQuestion = "Q2"
	s.IsDerivable = true

	md := tui.QuestionMarkdown(s, domain.NewCatalog())
	assert.Contains(t, md, "現在診断中:** Lビザ（企業内転勤ビザ）")
	assert.Contains(t, md, "質問 2")
	assert.Contains(t, md, "> Q2 (導出可能)")
}

func TestResultMarkdown(t *testing.T) {
	catalog := domain.NewCatalog()

	t.Run("Caveats", func(t *testing.T) {
		s := domain.NewSession("s1")
		s.Targets = []domain.Target{"E"}
		s.Finished = true
		s.Conclusions = []string{"Eビザ申請可"}
		s.Caveats = []domain.CaveatGroup{{
			Conclusion: "Eビザ申請可",
			Operator:   domain.OperatorOr,
			Conditions: []string{"a", "b"},
		}}

		md := tui.ResultMarkdown(s, catalog)
		assert.Contains(t, md, "- **Eビザ申請可**")
		assert.Contains(t, md, "- Eビザ申請可: a または b")
	})

	t.Run("Multi Target", func(t *testing.T) {
		s := domain.NewSession("s1")
		s.Targets = []domain.Target{"E", "B"}
		s.MultiTarget = true
		s.Finished = true
		s.TargetConclusions = map[domain.Target][]string{"E": {"Eビザ申請可"}}

		md := tui.ResultMarkdown(s, catalog)
		assert.Contains(t, md, "全ビザタイプ")
		assert.Contains(t, md, "- ✓ Eビザ申請可")
		assert.Contains(t, md, "このビザタイプでは申請できません")
	})

	t.Run("Insufficient Info Falls Back To Unknown Answers", func(t *testing.T) {
		s := domain.NewSession("s1")
		s.Targets = []domain.Target{"E"}
		s.Finished = true
		s.InsufficientInfo = true
		s.History = []string{"Q1", "Q2"}
		s.Answers = map[string]domain.Answer{"Q1": domain.AnswerYes, "Q2": domain.AnswerUnknown}

		md := tui.ResultMarkdown(s, catalog)
		assert.Contains(t, md, "診断できませんでした")
		assert.Contains(t, md, "- Q2")
		assert.NotContains(t, md, "- Q1")
	})

	t.Run("No Conclusion", func(t *testing.T) {
		s := domain.NewSession("s1")
		s.Targets = []domain.Target{"E"}
		s.Finished = true
		assert.Contains(t, tui.ResultMarkdown(s, catalog), "見つかりませんでした")
	})
}

func TestTraceMarkdown(t *testing.T) {
	rules := []domain.Rule{
		{
			RuleID:   "R1",
			Operator: domain.OperatorAnd,
			Conditions: []domain.Condition{
				{FactName: "A", Status: domain.StatusSatisfied},
				{FactName: "B", Status: domain.StatusUnknown, IsDerivable: true},
			},
			Conclusion: "C",
			IsFireable: true,
		},
		{RuleID: "R2", Operator: domain.OperatorAnd, Conditions: []domain.Condition{{FactName: "Z", Status: domain.StatusUnknown}}, Conclusion: "Y", IsFireable: true},
	}
	res := trace.Classify(rules, nil, "B")

	md := tui.TraceMarkdown(res)
	assert.Contains(t, md, "発火したルール: 0")
	assert.Contains(t, md, "表示中のルール: 1 / 2")
	assert.Contains(t, md, "### R1 [推論中] ★今の質問に関係")
	assert.Contains(t, md, "- ✓ A")
	assert.Contains(t, md, "- · B (導出可能)")
	assert.NotContains(t, md, "R2")

	empty := tui.TraceMarkdown(trace.Classify(nil, nil, ""))
	assert.Contains(t, empty, "表示中のルール: 0 / 0")
}

func TestRenderer(t *testing.T) {
	render, err := tui.NewRenderer("notty")
	require.NoError(t, err)

	out, err := render("## 診断結果\n\n- **Eビザ申請可**\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Eビザ申請可")
}

func TestBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|")
	assert.NotEmpty(t, tui.StateBadge(domain.StateFired))
	assert.Contains(t, tui.PhaseBadge(domain.PhaseFinished), "finished")
}
