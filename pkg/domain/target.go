package domain

import (
	"fmt"
	"slices"
)

// Target identifies what a consultation diagnoses eligibility for (a visa type).
type Target string

// TargetAll is the wire value selecting multi-target mode.
const TargetAll Target = "ALL"

// TargetInfo describes a recognized target for selection screens.
type TargetInfo struct {
	ID          Target `json:"id" yaml:"id" mapstructure:"id"`
	Title       string `json:"title" yaml:"title" mapstructure:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
}

// Catalog is the ordered set of targets a consultation may run against.
type Catalog struct {
	targets []TargetInfo
}

// DefaultTargets is the built-in visa catalog.
var DefaultTargets = []TargetInfo{
	{ID: "E", Title: "Eビザ（投資・貿易ビザ）", Description: "日米間の投資や貿易を行う企業の従業員が対象"},
	{ID: "L", Title: "Lビザ（企業内転勤ビザ）", Description: "グループ会社間の異動（マネージャーまたはスペシャリスト）"},
	{ID: "B", Title: "Bビザ（商用・観光ビザ）", Description: "短期の商用活動、会議、研修などが対象"},
}

// NewCatalog builds a catalog from the given targets, dropping duplicates
// and the reserved ALL identifier. An empty list yields DefaultTargets.
func NewCatalog(infos ...TargetInfo) *Catalog {
	if len(infos) == 0 {
		infos = DefaultTargets
	}
	c := &Catalog{}
	for _, info := range infos {
		if info.ID == "" || info.ID == TargetAll || c.Has(info.ID) {
			continue
		}
		if info.Title == "" {
			info.Title = string(info.ID)
		}
		c.targets = append(c.targets, info)
	}
	return c
}

// Targets returns the recognized target ids in catalog order.
func (c *Catalog) Targets() []Target {
	ids := make([]Target, len(c.targets))
	for i, info := range c.targets {
		ids[i] = info.ID
	}
	return ids
}

// Infos returns a copy of the catalog entries.
func (c *Catalog) Infos() []TargetInfo {
	return slices.Clone(c.targets)
}

// Has reports whether id is a recognized target.
func (c *Catalog) Has(id Target) bool {
	return slices.ContainsFunc(c.targets, func(info TargetInfo) bool { return info.ID == id })
}

// Info returns the catalog entry for id.
func (c *Catalog) Info(id Target) (TargetInfo, bool) {
	for _, info := range c.targets {
		if info.ID == id {
			return info, true
		}
	}
	return TargetInfo{}, false
}

// Resolve validates a target selection. It returns the normalized targets
// and whether the selection is multi-target mode. A selection is either a
// single recognized target, ALL, or exactly the full catalog.
func (c *Catalog) Resolve(targets []Target) ([]Target, bool, error) {
	if len(targets) == 0 {
		return nil, false, fmt.Errorf("%w: no target selected", ErrInvalidTarget)
	}
	if len(targets) == 1 && targets[0] == TargetAll {
		if len(c.targets) == 0 {
			return nil, false, fmt.Errorf("%w: catalog is empty", ErrInvalidTarget)
		}
		return c.Targets(), true, nil
	}

	var distinct []Target
	for _, t := range targets {
		if !c.Has(t) {
			return nil, false, fmt.Errorf("%w: %q", ErrInvalidTarget, t)
		}
		if !slices.Contains(distinct, t) {
			distinct = append(distinct, t)
		}
	}
	if len(distinct) == 1 {
		return distinct, false, nil
	}
	if len(distinct) != len(c.targets) {
		return nil, false, fmt.Errorf("%w: multi-target mode requires every target, got %v", ErrInvalidTarget, distinct)
	}
	return c.Targets(), true, nil
}

// WireValue is the target identifier sent to the inference service.
func WireValue(targets []Target, multi bool) string {
	if multi || len(targets) != 1 {
		return string(TargetAll)
	}
	return string(targets[0])
}
