// Package classify assigns a closed-set sector label to opportunities.
//
// Classification is an ordered rule table, not a scoring model: rules are
// evaluated in declaration order and the first match wins. Upstream text is
// noisy and a notice can plausibly match several sectors' keywords, so the
// tie-break is the table order and nothing else. A record matching no rule
// is left unclassified and excluded downstream rather than dumped into a
// generic bucket.
package classify

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tkearney/tenderfeed/internal/tender"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule matches one sector by keyword substrings and CPV code prefixes.
type Rule struct {
	Sector   tender.Sector `yaml:"sector"`
	Keywords []string      `yaml:"keywords"`
	Codes    []string      `yaml:"codes"`
}

// Table is the parsed rule file: hard exclusion phrases plus the ordered
// sector rules.
type Table struct {
	Exclude []string `yaml:"exclude"`
	Rules   []Rule   `yaml:"rules"`
}

// Classifier evaluates the rule table against opportunities.
type Classifier struct {
	table Table
}

// NewDefault builds a Classifier from the embedded rule table.
func NewDefault() *Classifier {
	c, err := New(defaultRulesYAML)
	if err != nil {
		// The embedded table is validated by tests; reaching here means a
		// broken build, not a runtime condition.
		panic(fmt.Sprintf("classify: embedded rules invalid: %v", err))
	}
	return c
}

// New builds a Classifier from a YAML rule file, allowing deployments to
// override the embedded table.
func New(rulesYAML []byte) (*Classifier, error) {
	var table Table
	if err := yaml.Unmarshal(rulesYAML, &table); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(table.Rules) == 0 {
		return nil, fmt.Errorf("rule table has no sector rules")
	}
	for i, r := range table.Rules {
		switch r.Sector {
		case tender.SectorRail, tender.SectorAviation, tender.SectorHighways,
			tender.SectorUtilities, tender.SectorMaritime:
		default:
			return nil, fmt.Errorf("rule %d: unknown sector %q", i, r.Sector)
		}
	}
	return &Classifier{table: table}, nil
}

// Classify returns the first matching sector for the opportunity, or
// SectorUnclassified when no rule matches or an exclusion phrase hits.
func (c *Classifier) Classify(o tender.Opportunity) tender.Sector {
	hay := strings.ToLower(o.Title + " " + o.Organisation)

	for _, phrase := range c.table.Exclude {
		if strings.Contains(hay, phrase) {
			return tender.SectorUnclassified
		}
	}

	for _, rule := range c.table.Rules {
		if rule.matches(hay, o.Codes) {
			return rule.Sector
		}
	}
	return tender.SectorUnclassified
}

// Tag classifies every opportunity in place and returns the slice.
func (c *Classifier) Tag(opps []tender.Opportunity) []tender.Opportunity {
	for i := range opps {
		opps[i].Sector = c.Classify(opps[i])
	}
	return opps
}

func (r Rule) matches(hay string, codes []string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(hay, kw) {
			return true
		}
	}
	for _, prefix := range r.Codes {
		for _, code := range codes {
			if strings.HasPrefix(code, prefix) {
				return true
			}
		}
	}
	return false
}
