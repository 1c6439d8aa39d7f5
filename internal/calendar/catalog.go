package calendar

import (
	"fmt"
	"strings"
)

// AppointmentTypes offered by the booking form.
var AppointmentTypes = []string{
	"Complete Physical Exam",
	"Follow-up",
	"Medicare Wellness Visit",
	"New Patient",
	"Office Visit",
	"Procedure",
	"Same Day",
	"Shots Only",
	"Well Child Check",
}

// AppointmentDurations are the selectable visit lengths in minutes.
var AppointmentDurations = []int{15, 30, 45, 60}

// DefaultAppointmentDuration preselected by the booking form.
const DefaultAppointmentDuration = 30

// TimeBlockLabels offered by the block-time form. "Other" takes a custom label.
var TimeBlockLabels = []string{
	"Lunch",
	"Meeting",
	"Training",
	"Personal",
	"Administrative",
	"Surgery (out of office)",
	"Conference",
	"Other",
}

// DefaultProviders is the clinic's provider roster when none is configured.
var DefaultProviders = []Provider{
	{ID: "cherie", DisplayName: "Cherie"},
	{ID: "anna-lia", DisplayName: "Anna-Lia"},
}

// ParseProviders reads "id:Display Name,id2:Other" into a provider list.
// An entry without a display name uses its id.
func ParseProviders(raw string) ([]Provider, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]Provider(nil), DefaultProviders...), nil
	}
	seen := map[string]struct{}{}
	var out []Provider
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, _ := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("calendar: provider entry %q has no id", part)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("calendar: duplicate provider %q", id)
		}
		seen[id] = struct{}{}
		if name == "" {
			name = id
		}
		out = append(out, Provider{ID: id, DisplayName: name})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("calendar: no providers in %q", raw)
	}
	return out, nil
}

// ProviderSet is the fixed roster with constant-time lookup.
type ProviderSet struct {
	list []Provider
	byID map[string]Provider
}

// NewProviderSet indexes providers in roster order.
func NewProviderSet(providers []Provider) *ProviderSet {
	ps := &ProviderSet{byID: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, ok := ps.byID[p.ID]; ok {
			continue
		}
		ps.list = append(ps.list, p)
		ps.byID[p.ID] = p
	}
	return ps
}

// List returns providers in display order.
func (ps *ProviderSet) List() []Provider {
	return append([]Provider(nil), ps.list...)
}

// IDs returns provider ids in display order.
func (ps *ProviderSet) IDs() []string {
	ids := make([]string, len(ps.list))
	for i, p := range ps.list {
		ids[i] = p.ID
	}
	return ids
}

// Get looks up a provider.
func (ps *ProviderSet) Get(id string) (Provider, bool) {
	p, ok := ps.byID[id]
	return p, ok
}

// Has reports whether id is on the roster.
func (ps *ProviderSet) Has(id string) bool {
	_, ok := ps.byID[id]
	return ok
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ValidAppointmentType reports whether t is one of AppointmentTypes.
func ValidAppointmentType(t string) bool { return contains(AppointmentTypes, t) }

// ValidAppointmentDuration reports whether minutes is one of AppointmentDurations.
func ValidAppointmentDuration(minutes int) bool { return contains(AppointmentDurations, minutes) }

// ValidTimeBlockLabel reports whether label is one of TimeBlockLabels.
func ValidTimeBlockLabel(label string) bool { return contains(TimeBlockLabels, label) }
