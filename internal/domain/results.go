package domain

// ObjectResult records the outcome of ensuring a single desired object.
type ObjectResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ApplyResultSet groups per-object outcomes by category. Each apply pass fully
// replaces the previous set; the engine keeps no history.
type ApplyResultSet map[ObjectCategory]map[string]ObjectResult

// Record stores the outcome for one object.
func (r ApplyResultSet) Record(category ObjectCategory, name string, success bool, message string) {
	if r[category] == nil {
		r[category] = make(map[string]ObjectResult)
	}
	r[category][name] = ObjectResult{Success: success, Message: message}
}

// Healthy reports whether every object in the category succeeded. An empty or
// absent category is healthy.
func (r ApplyResultSet) Healthy(category ObjectCategory) bool {
	for _, res := range r[category] {
		if !res.Success {
			return false
		}
	}
	return true
}

// Counts returns the number of succeeded and failed objects in the category.
func (r ApplyResultSet) Counts(category ObjectCategory) (succeeded, failed int) {
	for _, res := range r[category] {
		if res.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Clone returns a deep copy of the result set.
func (r ApplyResultSet) Clone() ApplyResultSet {
	c := make(ApplyResultSet, len(r))
	for category, objects := range r {
		c[category] = make(map[string]ObjectResult, len(objects))
		for name, res := range objects {
			c[category][name] = res
		}
	}
	return c
}

// CategorySummary is the per-category rollup reported to operators.
type CategorySummary struct {
	Category  ObjectCategory `json:"category"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// Summarize produces per-category counts in canonical category order.
func (r ApplyResultSet) Summarize() []CategorySummary {
	summaries := make([]CategorySummary, 0, len(r))
	for _, category := range Categories() {
		if _, ok := r[category]; !ok {
			continue
		}
		s, f := r.Counts(category)
		summaries = append(summaries, CategorySummary{Category: category, Succeeded: s, Failed: f})
	}
	return summaries
}

// ApplyResponse is returned by the apply endpoint. A partially failed pass is
// still reported as a completed pass with per-category detail.
type ApplyResponse struct {
	Application string            `json:"application"`
	AppliedAt   string            `json:"appliedAt"`
	Summary     []CategorySummary `json:"summary"`
	Results     ApplyResultSet    `json:"results"`
}
