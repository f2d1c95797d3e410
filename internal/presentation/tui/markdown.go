package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/trace"
)

// StateLabel is the display text of a rule state.
func StateLabel(s domain.DisplayState) string {
	switch s {
	case domain.StateFired:
		return "発火済み"
	case domain.StateEvaluating:
		return "推論中"
	case domain.StateUnfireable:
		return "発火不可能"
	default:
		return "未評価"
	}
}

var statusTags = map[domain.ConditionStatus]string{
	domain.StatusSatisfied:    "✓",
	domain.StatusNotSatisfied: "✗",
	domain.StatusUncertain:    "?",
	domain.StatusUnknown:      "·",
}

// TargetTitle returns the catalog title of t, or the bare id.
func TargetTitle(catalog *domain.Catalog, t domain.Target) string {
	if catalog != nil {
		if info, ok := catalog.Info(t); ok {
			return info.Title
		}
	}
	return string(t) + "ビザ"
}

// CaveatText joins the conditions of a caveat group with its connective.
func CaveatText(g domain.CaveatGroup) string {
	return strings.Join(g.Conditions, " "+g.Operator.Join()+" ")
}

// QuestionMarkdown renders the question on screen with a progress line.
func QuestionMarkdown(s *domain.Session, catalog *domain.Catalog) string {
	var b strings.Builder
	b.WriteString("# ビザ選定診断\n\n")
	if s.MultiTarget && s.CurrentTarget != "" {
		fmt.Fprintf(&b, "**現在診断中:** %s\n\n", TargetTitle(catalog, s.CurrentTarget))
	}
	fmt.Fprintf(&b, "_質問 %d_\n\n", len(s.History))
	fmt.Fprintf(&b, "> %s", s.CurrentQuestion)
	if s.IsDerivable {
		b.WriteString(" (導出可能)")
	}
	b.WriteString("\n")
	return b.String()
}

// ResultMarkdown renders a finished consultation.
func ResultMarkdown(s *domain.Session, catalog *domain.Catalog) string {
	var b strings.Builder

	switch {
	case s.MultiTarget:
		b.WriteString("## 診断結果（全ビザタイプ）\n\n")
		for _, t := range s.Targets {
			fmt.Fprintf(&b, "### %s\n\n", TargetTitle(catalog, t))
			concl := s.TargetConclusions[t]
			if len(concl) == 0 {
				b.WriteString("_このビザタイプでは申請できません_\n\n")
				continue
			}
			for _, c := range concl {
				fmt.Fprintf(&b, "- ✓ %s\n", c)
			}
			b.WriteString("\n")
		}

	case s.InsufficientInfo:
		b.WriteString("## 診断できませんでした\n\n")
		b.WriteString("情報が不足しているため、診断を完了できませんでした。\n\n")
		missing := s.MissingCriticalInfo
		if len(missing) == 0 {
			missing = s.UnknownAnswers()
		}
		if len(missing) > 0 {
			b.WriteString("以下の条件について「分からない」と回答されています：\n\n")
			for _, f := range missing {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			b.WriteString("\nこれらの情報を確認してから再度診断してください。\n")
		}

	case len(s.Conclusions) == 0:
		b.WriteString("## 診断結果\n\n")
		b.WriteString("現在の条件では、申請可能なビザが見つかりませんでした。\n")

	default:
		b.WriteString("## 診断結果\n\n")
		for _, c := range s.Conclusions {
			fmt.Fprintf(&b, "- **%s**\n", c)
		}
		if len(s.Caveats) > 0 {
			b.WriteString("\n※ 以下の条件については「分からない」と回答されているため、これらが満たされている前提での結果です：\n\n")
			for _, g := range s.Caveats {
				fmt.Fprintf(&b, "- %s: %s\n", g.Conclusion, CaveatText(g))
			}
		}
	}
	return b.String()
}

// TraceMarkdown renders a classified rule trace.
func TraceMarkdown(res trace.Result) string {
	var b strings.Builder
	b.WriteString("## 推論過程\n\n")
	fmt.Fprintf(&b, "発火したルール: %d\n\n", res.FiredCount)
	fmt.Fprintf(&b, "表示中のルール: %d / %d\n\n", len(res.Relevant), res.Total)

	if len(res.Relevant) == 0 {
		b.WriteString("_質問に回答すると、関連するルールがここに表示されます。_\n")
		return b.String()
	}

	for _, e := range res.Relevant {
		fmt.Fprintf(&b, "### %s [%s]", e.Rule.RuleID, StateLabel(e.State))
		if e.Focused {
			b.WriteString(" ★今の質問に関係")
		}
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "IF (条件 - %s):\n\n", e.Rule.Operator)
		for _, c := range e.Rule.Conditions {
			fmt.Fprintf(&b, "- %s %s", statusTag(c.Status), c.FactName)
			if c.IsDerivable {
				b.WriteString(" (導出可能)")
			}
			b.WriteString("\n")
		}
		concl := e.Rule.Conclusion
		if e.Rule.ConclusionDerived {
			concl = "**" + concl + "**"
		}
		fmt.Fprintf(&b, "\nTHEN (結論): %s\n\n", concl)
	}
	return b.String()
}

func statusTag(s domain.ConditionStatus) string {
	if tag, ok := statusTags[s]; ok {
		return tag
	}
	return statusTags[domain.StatusUnknown]
}
