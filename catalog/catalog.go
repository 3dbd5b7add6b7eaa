// Package catalog holds the static set of trackable training sections and
// each section's completion policy. The set is fixed at deploy time; nothing
// in here mutates after construction.
package catalog

// SectionDefinition describes one trackable section. RequiredDwellSeconds of
// zero means visit-only: any recorded visit completes the section. A positive
// value requires that much accumulated dwell time before the section counts.
type SectionDefinition struct {
	ID                   string `json:"id"`
	Label                string `json:"label"`
	RequiredDwellSeconds int    `json:"requiredDwellSeconds"`
}

// VisitOnly reports whether the section completes on first page view.
func (d SectionDefinition) VisitOnly() bool {
	return d.RequiredDwellSeconds == 0
}

type Catalog struct {
	sections []SectionDefinition
	byID     map[string]SectionDefinition
}

func New(sections []SectionDefinition) *Catalog {
	c := &Catalog{
		sections: make([]SectionDefinition, len(sections)),
		byID:     make(map[string]SectionDefinition, len(sections)),
	}
	copy(c.sections, sections)
	for _, s := range sections {
		c.byID[s.ID] = s
	}
	return c
}

// Default returns the deployed training curriculum.
func Default() *Catalog {
	return New([]SectionDefinition{
		{ID: "welcome", Label: "Welcome Aboard", RequiredDwellSeconds: 0},
		{ID: "company-policy", Label: "Company Policy", RequiredDwellSeconds: 60},
		{ID: "code-of-conduct", Label: "Code of Conduct", RequiredDwellSeconds: 90},
		{ID: "safety-basics", Label: "Safety Basics", RequiredDwellSeconds: 120},
		{ID: "fire-safety", Label: "Fire Safety", RequiredDwellSeconds: 90},
		{ID: "first-aid", Label: "First Aid", RequiredDwellSeconds: 120},
		{ID: "emergency-procedures", Label: "Emergency Procedures", RequiredDwellSeconds: 180},
		{ID: "security-awareness", Label: "Security Awareness", RequiredDwellSeconds: 120},
		{ID: "data-protection", Label: "Data Protection", RequiredDwellSeconds: 60},
		{ID: "harassment-prevention", Label: "Harassment Prevention", RequiredDwellSeconds: 90},
		{ID: "environmental-compliance", Label: "Environmental Compliance", RequiredDwellSeconds: 60},
		{ID: "equipment-handling", Label: "Equipment Handling", RequiredDwellSeconds: 120},
		{ID: "incident-reporting", Label: "Incident Reporting", RequiredDwellSeconds: 0},
		{ID: "final-summary", Label: "Training Summary", RequiredDwellSeconds: 0},
	})
}

// PolicyFor looks up a section by id.
func (c *Catalog) PolicyFor(sectionID string) (SectionDefinition, bool) {
	def, ok := c.byID[sectionID]
	return def, ok
}

// Sections returns the sections in their fixed display order.
func (c *Catalog) Sections() []SectionDefinition {
	out := make([]SectionDefinition, len(c.sections))
	copy(out, c.sections)
	return out
}

func (c *Catalog) Len() int {
	return len(c.sections)
}
