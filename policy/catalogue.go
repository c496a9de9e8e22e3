package policy

import (
	"fmt"
	"sort"
	"sync"
)

// Department lists the conditions a routine department treats.
type Department struct {
	Name       string   `json:"name" yaml:"name"`
	Conditions []string `json:"conditions" yaml:"conditions"`
}

// Catalogue maps conditions to departments.
type Catalogue struct {
	Departments []Department `json:"departments" yaml:"departments"`
	// Default receives conditions no department lists.
	Default string `json:"default" yaml:"default"`
	// Trauma lists the conditions surge cases present with.
	Trauma []string `json:"trauma" yaml:"trauma"`

	once  sync.Once
	index map[string]string
}

// DefaultCatalogue returns the reference departments.
func DefaultCatalogue() *Catalogue {
	return &Catalogue{
		Departments: []Department{
			{Name: "Cardiology", Conditions: []string{"heart attack", "arrhythmia", "heart failure"}},
			{Name: "Neurology", Conditions: []string{"stroke", "concussion", "seizure"}},
			{Name: "Orthopedics", Conditions: []string{"broken arm", "broken leg", "sprained ankle", "fracture"}},
			{Name: "Pulmonology", Conditions: []string{"pneumonia", "asthma", "bronchitis"}},
			{Name: "Gastroenterology", Conditions: []string{"appendicitis", "ulcer", "food poisoning"}},
			{Name: "General Surgery", Conditions: []string{"hernia", "gallstones"}},
			{Name: "Internal Medicine", Conditions: []string{"high fever", "flu", "diabetes", "hypertension"}},
		},
		Default: "Internal Medicine",
		Trauma:  []string{"multiple trauma", "severe bleeding", "crush injury", "head injury", "penetrating trauma", "blast injury"},
	}
}

// Validate checks the default department exists and names are unique.
func (c *Catalogue) Validate() error {
	if len(c.Departments) == 0 {
		return fmt.Errorf("catalogue has no departments")
	}
	seen := map[string]bool{}
	for _, d := range c.Departments {
		if d.Name == "" {
			return fmt.Errorf("department name was empty")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate department %q", d.Name)
		}
		seen[d.Name] = true
	}
	if !seen[c.Default] {
		return fmt.Errorf("default department %q is not defined", c.Default)
	}
	return nil
}

// Names returns department names in declaration order.
func (c *Catalogue) Names() []string {
	ret := make([]string, 0, len(c.Departments))
	for _, d := range c.Departments {
		ret = append(ret, d.Name)
	}
	return ret
}

// DepartmentOf returns the department treating a condition, or the default.
func (c *Catalogue) DepartmentOf(condition string) string {
	c.once.Do(func() {
		c.index = map[string]string{}
		for _, d := range c.Departments {
			for _, cond := range d.Conditions {
				c.index[cond] = d.Name
			}
		}
	})
	if name, ok := c.index[condition]; ok {
		return name
	}
	return c.Default
}

// Conditions returns every routine condition, sorted.
func (c *Catalogue) Conditions() []string {
	var ret []string
	for _, d := range c.Departments {
		ret = append(ret, d.Conditions...)
	}
	sort.Strings(ret)
	return ret
}
