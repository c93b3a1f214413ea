package filters

import (
	"encoding/json"

	"github.com/trellishq/trellis/internal/rfilter"
	"github.com/trellishq/trellis/internal/types"
)

// persistedFilter is the on-disk shape of a Filter. The rich expression is
// stored in its canonical text form.
type persistedFilter struct {
	Display types.DisplayFilters `json:"display_filters"`
	Rich    string               `json:"rich_filters,omitempty"`
}

// MarshalJSON persists the filter with the rich expression in canonical
// text form.
func (f *Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(persistedFilter{
		Display: f.Display,
		Rich:    rfilter.Encode(f.Rich),
	})
}

// UnmarshalJSON restores a persisted filter. A malformed stored rich
// expression is treated as empty rather than failing the load: persisted
// defaults are a convenience, not a correctness requirement, and the view
// must come up even if a stored expression predates a syntax change.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var p persistedFilter
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	f.Display = p.Display
	f.Rich = nil
	if p.Rich != "" {
		if node, err := rfilter.Parse(p.Rich); err == nil {
			f.Rich = node
		}
	}
	return nil
}
