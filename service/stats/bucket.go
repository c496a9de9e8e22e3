package stats

import (
	"maps"

	"github.com/viant/triage/model"
)

// Surge holds per-day counters for surge cases.
type Surge struct {
	Patients int `json:"patients"`
	Alive    int `json:"alive"`
	Dead     int `json:"dead"`
	Lost     int `json:"lost"`
}

// Waiting aggregates the time cases waited for their first doctor.
type Waiting struct {
	Total model.Tick `json:"total"`
	Count int        `json:"count"`
	Max   model.Tick `json:"max"`
}

// Average returns the mean waiting time in ticks.
func (w Waiting) Average() float64 {
	if w.Count == 0 {
		return 0
	}
	return float64(w.Total) / float64(w.Count)
}

// Bucket holds the counters of a single day.
type Bucket struct {
	Day              int            `json:"day"`
	Visits           int            `json:"visits"`
	Alive            int            `json:"alive"`
	Dead             int            `json:"dead"`
	Lost             int            `json:"lost"`
	Ambulance        int            `json:"ambulance"`
	Emergency        int            `json:"emergency"`
	BloodWork        int            `json:"bloodWork"`
	XRay             int            `json:"xray"`
	Surgeries        int            `json:"surgeries"`
	SurgerySuccess   int            `json:"surgerySuccess"`
	CodeBlue         int            `json:"codeBlue"`
	CodeBlueSurvived int            `json:"codeBlueSurvived"`
	Surge            Surge          `json:"surge"`
	Waiting          Waiting        `json:"waiting"`
	Departments      map[string]int `json:"departments,omitempty"`
	Conditions       map[string]int `json:"conditions,omitempty"`
}

// Delta returns the contribution of a single resolved case.
func Delta(day int, c *model.Case) Bucket {
	b := Bucket{Day: day}
	b.add(c)
	return b
}

func (b *Bucket) add(c *model.Case) {
	b.Visits++
	switch c.Outcome() {
	case model.OutcomeAlive:
		b.Alive++
	case model.OutcomeDead:
		b.Dead++
	case model.OutcomeLost:
		b.Lost++
	}
	if c.Origin() == model.OriginAmbulance {
		b.Ambulance++
	}
	if c.Emergency {
		b.Emergency++
	}
	if c.BloodWork {
		b.BloodWork++
	}
	if c.XRay {
		b.XRay++
	}
	if c.Surgery {
		b.Surgeries++
		if c.SurgerySucceeded {
			b.SurgerySuccess++
		}
	}
	if c.CodeBlue && c.Resuscitated {
		b.CodeBlue++
		if c.CodeBlueSurvived {
			b.CodeBlueSurvived++
		}
	}
	if c.Surge() {
		b.Surge.Patients++
		switch c.Outcome() {
		case model.OutcomeAlive:
			b.Surge.Alive++
		case model.OutcomeDead:
			b.Surge.Dead++
		case model.OutcomeLost:
			b.Surge.Lost++
		}
	}
	if wait, ok := c.Waiting(); ok {
		b.Waiting.Total += wait
		b.Waiting.Count++
		if wait > b.Waiting.Max {
			b.Waiting.Max = wait
		}
	}
	if c.Department != "" {
		if b.Departments == nil {
			b.Departments = map[string]int{}
		}
		b.Departments[c.Department]++
	}
	if c.Condition != "" {
		if b.Conditions == nil {
			b.Conditions = map[string]int{}
		}
		b.Conditions[c.Condition]++
	}
}

// Merge adds the counters of o into b.
func (b *Bucket) Merge(o Bucket) {
	b.Visits += o.Visits
	b.Alive += o.Alive
	b.Dead += o.Dead
	b.Lost += o.Lost
	b.Ambulance += o.Ambulance
	b.Emergency += o.Emergency
	b.BloodWork += o.BloodWork
	b.XRay += o.XRay
	b.Surgeries += o.Surgeries
	b.SurgerySuccess += o.SurgerySuccess
	b.CodeBlue += o.CodeBlue
	b.CodeBlueSurvived += o.CodeBlueSurvived
	b.Surge.Patients += o.Surge.Patients
	b.Surge.Alive += o.Surge.Alive
	b.Surge.Dead += o.Surge.Dead
	b.Surge.Lost += o.Surge.Lost
	b.Waiting.Total += o.Waiting.Total
	b.Waiting.Count += o.Waiting.Count
	if o.Waiting.Max > b.Waiting.Max {
		b.Waiting.Max = o.Waiting.Max
	}
	b.Departments = mergeCounts(b.Departments, o.Departments)
	b.Conditions = mergeCounts(b.Conditions, o.Conditions)
}

func mergeCounts(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// Clone returns a deep copy.
func (b Bucket) Clone() Bucket {
	b.Departments = maps.Clone(b.Departments)
	b.Conditions = maps.Clone(b.Conditions)
	return b
}

// Recorded returns the number of cases with a clinical outcome.
func (b Bucket) Recorded() int { return b.Alive + b.Dead }
