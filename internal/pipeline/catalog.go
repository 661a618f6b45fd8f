// Package pipeline provides the static step catalog for the story delivery pipeline.
//
// The catalog is pure data: the eight ordered stages a story moves through,
// the actor class responsible for each stage, and each stage's default timeout.
// Templates select an ordered subset of the stages for abbreviated flows such
// as hotfixes.
//
// Key types:
//   - [StageID] - Canonical stage identifier (closed set)
//   - [Stage] - A single catalog entry
//   - [Catalog] - Immutable ordered stage list plus named templates
//
// Use [Default] for the standard catalog. [Catalog.WithTimeouts] and
// [Catalog.WithTemplate] return modified copies; a Catalog is never mutated
// after construction, so it is safe to share between goroutines.
package pipeline

import (
	"time"
)

// StageID identifies one of the fixed pipeline stages.
type StageID string

// Canonical stage identifiers, in pipeline order.
const (
	StageTriage       StageID = "triage"
	StagePlan         StageID = "plan"
	StageDeliberation StageID = "deliberation"
	StageImplement    StageID = "implement"
	StageTest         StageID = "test"
	StageReview       StageID = "review"
	StageDeploy       StageID = "deploy"
	StageRelease      StageID = "release"
)

// IsValid reports whether id is one of the eight canonical stage ids.
func (id StageID) IsValid() bool {
	switch id {
	case StageTriage, StagePlan, StageDeliberation, StageImplement,
		StageTest, StageReview, StageDeploy, StageRelease:
		return true
	}
	return false
}

// ActorClass describes who is responsible for moving a stage forward.
type ActorClass string

const (
	// ActorHuman stages wait for an operator decision when started.
	ActorHuman ActorClass = "human"

	// ActorAgent stages are driven by an automated AI agent.
	ActorAgent ActorClass = "agent"

	// ActorSystem stages are driven by CI/CD or other infrastructure.
	ActorSystem ActorClass = "system"
)

// IsAutomated reports whether the actor class is an agent or system.
func (a ActorClass) IsAutomated() bool {
	return a == ActorAgent || a == ActorSystem
}

// Stage is a single entry in the step catalog.
type Stage struct {
	// ID is the canonical stage identifier.
	ID StageID

	// Label is the human-readable stage name.
	Label string

	// Actor is the class of actor responsible for the stage.
	Actor ActorClass

	// Timeout is the default time budget while the stage is active.
	// Zero means the stage has no timeout.
	Timeout time.Duration
}

// Template names shipped with the default catalog.
const (
	TemplateFull     = "full"
	TemplateHotfix   = "hotfix"
	TemplateQuickfix = "quickfix"
)

// defaultStages is the canonical 8-stage pipeline.
var defaultStages = []Stage{
	{ID: StageTriage, Label: "Triage", Actor: ActorHuman},
	{ID: StagePlan, Label: "Plan", Actor: ActorAgent},
	{ID: StageDeliberation, Label: "Deliberation", Actor: ActorAgent, Timeout: 300 * time.Second},
	{ID: StageImplement, Label: "Implement", Actor: ActorAgent, Timeout: 600 * time.Second},
	{ID: StageTest, Label: "Test", Actor: ActorSystem, Timeout: 300 * time.Second},
	{ID: StageReview, Label: "Review", Actor: ActorHuman},
	{ID: StageDeploy, Label: "Deploy", Actor: ActorSystem, Timeout: 600 * time.Second},
	{ID: StageRelease, Label: "Release", Actor: ActorSystem, Timeout: 120 * time.Second},
}

// Catalog is the ordered list of pipeline stages plus named templates.
//
// Create with [Default] or [NewCatalog]. All methods return copies, so
// callers may freely modify returned slices.
type Catalog struct {
	stages    []Stage
	index     map[StageID]int
	templates map[string][]StageID
	// order of template registration, for listing
	names []string
}

// NewCatalog builds a catalog from an ordered stage list.
//
// The "full" template always contains every stage in the given order.
func NewCatalog(stages []Stage) *Catalog {
	c := &Catalog{
		stages:    make([]Stage, len(stages)),
		index:     make(map[StageID]int, len(stages)),
		templates: make(map[string][]StageID),
	}
	copy(c.stages, stages)

	full := make([]StageID, len(stages))
	for i, s := range stages {
		c.index[s.ID] = i
		full[i] = s.ID
	}
	c.templates[TemplateFull] = full
	c.names = []string{TemplateFull}
	return c
}

// defaultCatalog is built once; Catalog values are immutable.
var defaultCatalog = func() *Catalog {
	c := NewCatalog(defaultStages)
	c = c.WithTemplate(TemplateHotfix, []StageID{
		StageTriage, StageImplement, StageTest, StageReview, StageDeploy, StageRelease,
	})
	c = c.WithTemplate(TemplateQuickfix, []StageID{
		StageImplement, StageTest, StageReview,
	})
	return c
}()

// Default returns the standard 8-stage catalog with the full, hotfix and
// quickfix templates.
func Default() *Catalog {
	return defaultCatalog
}

// Stages returns every stage in canonical order.
func (c *Catalog) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Stage looks up a stage by canonical id.
func (c *Catalog) Stage(id StageID) (Stage, bool) {
	i, ok := c.index[id]
	if !ok {
		return Stage{}, false
	}
	return c.stages[i], true
}

// Templates returns the registered template names in registration order.
func (c *Catalog) Templates() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// HasTemplate reports whether a template with the given name is registered.
func (c *Catalog) HasTemplate(name string) bool {
	_, ok := c.templates[name]
	return ok
}

// Template returns the stages of the named template in pipeline order.
//
// Unknown or empty names resolve to the full template, so a snapshot that
// names a template this catalog does not know still gets a complete view.
func (c *Catalog) Template(name string) []Stage {
	ids, ok := c.templates[name]
	if !ok {
		ids = c.templates[TemplateFull]
	}
	out := make([]Stage, 0, len(ids))
	for _, id := range ids {
		if s, ok := c.Stage(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// WithTemplate returns a copy of the catalog with the named template added
// or replaced. Stage ids are kept in canonical order regardless of the order
// given; ids not in the catalog are dropped. Registering "full" is ignored.
func (c *Catalog) WithTemplate(name string, ids []StageID) *Catalog {
	if name == "" || name == TemplateFull {
		return c
	}
	n := c.clone()

	members := make(map[StageID]bool, len(ids))
	for _, id := range ids {
		members[id] = true
	}
	var ordered []StageID
	for _, s := range n.stages {
		if members[s.ID] {
			ordered = append(ordered, s.ID)
		}
	}

	if _, exists := n.templates[name]; !exists {
		n.names = append(n.names, name)
	}
	n.templates[name] = ordered
	return n
}

// WithTimeouts returns a copy of the catalog with default timeouts replaced
// for the given stages. A zero duration removes the stage's timeout.
func (c *Catalog) WithTimeouts(timeouts map[StageID]time.Duration) *Catalog {
	n := c.clone()
	for id, d := range timeouts {
		i, ok := n.index[id]
		if !ok || d < 0 {
			continue
		}
		n.stages[i].Timeout = d
	}
	return n
}

func (c *Catalog) clone() *Catalog {
	n := &Catalog{
		stages:    make([]Stage, len(c.stages)),
		index:     make(map[StageID]int, len(c.index)),
		templates: make(map[string][]StageID, len(c.templates)),
		names:     make([]string, len(c.names)),
	}
	copy(n.stages, c.stages)
	copy(n.names, c.names)
	for k, v := range c.index {
		n.index[k] = v
	}
	for k, v := range c.templates {
		ids := make([]StageID, len(v))
		copy(ids, v)
		n.templates[k] = ids
	}
	return n
}
