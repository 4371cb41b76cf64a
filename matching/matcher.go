// Package matching resolves alert-feed parks to reserve catalog records.
//
// Resolution is a fixed chain of rules tried in order: operator override,
// exact name, suffix-normalized name, then location pattern. The first rule
// that does not return NotApplicable decides the outcome.
package matching

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gewnthar/parkalerts/apperrors"
	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/models"
)

// Outcome tags a rule or chain result.
type Outcome int

const (
	NotApplicable Outcome = iota
	Matched
	ExplicitlyUnmatched
	Unmatched
)

func (o Outcome) String() string {
	switch o {
	case NotApplicable:
		return "not-applicable"
	case Matched:
		return "matched"
	case ExplicitlyUnmatched:
		return "explicitly-unmatched"
	case Unmatched:
		return "unmatched"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Park is the matcher's input.
type Park struct {
	ID   string
	Name string
}

// Result is the outcome of matching one park. ObjectID and ReserveName are set
// only for Matched; Source is set for Matched and ExplicitlyUnmatched.
type Result struct {
	Outcome     Outcome
	ObjectID    int64
	ReserveName string
	Source      models.MatchSource
}

// Mapping converts a decisive result into the row to persist. Unmatched
// parks get no row.
func (r Result) Mapping(p Park) (models.ParkMapping, bool) {
	switch r.Outcome {
	case Matched:
		id := r.ObjectID
		return models.ParkMapping{
			ParkID:      p.ID,
			ParkName:    p.Name,
			ObjectID:    &id,
			ReserveName: r.ReserveName,
			MatchSource: r.Source,
		}, true
	case ExplicitlyUnmatched:
		return models.ParkMapping{
			ParkID:      p.ID,
			ParkName:    p.Name,
			MatchSource: models.MatchSourceOverride,
		}, true
	default:
		return models.ParkMapping{}, false
	}
}

// Rule is one tier of the chain.
type Rule func(Park) Result

// Options configures the pattern-driven tiers.
type Options struct {
	SuffixPatterns []string
	LocationRules  []config.LocationRule
}

type locationRule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Matcher holds an immutable snapshot of reserves and overrides.
type Matcher struct {
	reserves  map[int64]models.Reserve
	byName    map[string]int64 // canonical name -> lowest object_id
	overrides map[string]models.ParkOverride
	suffixes  []*regexp.Regexp
	locations []locationRule
	rules     []Rule
}

// New builds a matcher. Invalid patterns are configuration errors.
func New(reserves []models.Reserve, overrides []models.ParkOverride, opts Options) (*Matcher, error) {
	m := &Matcher{
		reserves:  make(map[int64]models.Reserve, len(reserves)),
		byName:    make(map[string]int64, len(reserves)),
		overrides: make(map[string]models.ParkOverride, len(overrides)),
	}

	for _, r := range reserves {
		m.reserves[r.ObjectID] = r
		key := Canonical(r.Name)
		if key == "" {
			continue
		}
		if existing, ok := m.byName[key]; !ok || r.ObjectID < existing {
			m.byName[key] = r.ObjectID
		}
	}
	for _, o := range overrides {
		if o.ParkID != "" {
			m.overrides[o.ParkID] = o
		}
	}

	for _, p := range opts.SuffixPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, patternError(err, "suffix_pattern", p)
		}
		m.suffixes = append(m.suffixes, re)
	}
	for _, lr := range opts.LocationRules {
		re, err := regexp.Compile("(?i)" + lr.Pattern)
		if err != nil {
			return nil, patternError(err, "location_rule", lr.Pattern)
		}
		if re.NumSubexp() < 1 {
			return nil, patternError(fmt.Errorf("pattern needs a capture group"), "location_rule", lr.Pattern)
		}
		m.locations = append(m.locations, locationRule{pattern: re, placeholder: Canonical(lr.Placeholder)})
	}

	m.rules = []Rule{m.matchOverride, m.matchExact, m.matchNormalized, m.matchLocation}
	return m, nil
}

func patternError(err error, field, pattern string) error {
	return apperrors.New(err).
		Kind(apperrors.KindConfiguration).
		Component("matcher").
		Context(field, pattern).
		Build()
}

// Resolve runs the chain for one park.
func (m *Matcher) Resolve(p Park) Result {
	for _, rule := range m.rules {
		if res := rule(p); res.Outcome != NotApplicable {
			return res
		}
	}
	return Result{Outcome: Unmatched}
}

// OverrideMappings returns a mapping row for every override entry, ordered by park_id.
func (m *Matcher) OverrideMappings() []models.ParkMapping {
	ids := make([]string, 0, len(m.overrides))
	for id := range m.overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	mappings := make([]models.ParkMapping, 0, len(ids))
	for _, id := range ids {
		o := m.overrides[id]
		park := Park{ID: o.ParkID, Name: o.ParkName}
		if mapping, ok := m.matchOverride(park).Mapping(park); ok {
			mappings = append(mappings, mapping)
		}
	}
	return mappings
}

// matchOverride uses the file-supplied object_id verbatim, whether or not
// that reserve is on hand.
func (m *Matcher) matchOverride(p Park) Result {
	o, ok := m.overrides[p.ID]
	if !ok {
		return Result{}
	}
	if o.ObjectID == nil {
		return Result{Outcome: ExplicitlyUnmatched, Source: models.MatchSourceOverride}
	}
	name := o.ReserveName
	if r, ok := m.reserves[*o.ObjectID]; ok && name == "" {
		name = r.Name
	}
	return Result{Outcome: Matched, ObjectID: *o.ObjectID, ReserveName: name, Source: models.MatchSourceOverride}
}

func (m *Matcher) matchExact(p Park) Result {
	return m.lookupName(p.Name, models.MatchSourceExact)
}

// matchNormalized strips cosmetic suffixes and retries the name lookup. It
// does not apply when no suffix pattern changed the name.
func (m *Matcher) matchNormalized(p Park) Result {
	stripped := p.Name
	for _, re := range m.suffixes {
		stripped = strings.TrimSpace(re.ReplaceAllString(stripped, ""))
	}
	if stripped == strings.TrimSpace(p.Name) || stripped == "" {
		return Result{}
	}
	return m.lookupName(stripped, models.MatchSourceNormalized)
}

// matchLocation handles reserves catalogued under a shared placeholder
// name and told apart only by their location text.
func (m *Matcher) matchLocation(p Park) Result {
	for _, rule := range m.locations {
		sub := rule.pattern.FindStringSubmatch(strings.TrimSpace(p.Name))
		if sub == nil {
			continue
		}
		want := Canonical(sub[1])
		if want == "" {
			continue
		}

		var exact, partial *models.Reserve
		for id := range m.reserves {
			r := m.reserves[id]
			if r.Location == nil || Canonical(r.Name) != rule.placeholder {
				continue
			}
			loc := Canonical(*r.Location)
			switch {
			case loc == want:
				if exact == nil || r.ObjectID < exact.ObjectID {
					exact = &r
				}
			case loc != "" && (strings.Contains(loc, want) || strings.Contains(want, loc)):
				if partial == nil || r.ObjectID < partial.ObjectID {
					partial = &r
				}
			}
		}

		hit := exact
		if hit == nil {
			hit = partial
		}
		if hit != nil {
			return Result{Outcome: Matched, ObjectID: hit.ObjectID, ReserveName: hit.Name, Source: models.MatchSourceLocation}
		}
	}
	return Result{}
}

func (m *Matcher) lookupName(name string, source models.MatchSource) Result {
	id, ok := m.byName[Canonical(name)]
	if !ok {
		return Result{}
	}
	return Result{Outcome: Matched, ObjectID: id, ReserveName: m.reserves[id].Name, Source: source}
}
