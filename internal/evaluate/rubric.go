package evaluate

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/affiliate-scout/internal/model"
)

// Rubrics holds the tier-specific judging instruction.
type Rubrics struct {
	Hard   string `yaml:"hard"`
	Medium string `yaml:"medium"`
	Easy   string `yaml:"easy"`
}

// DefaultRubrics returns the built-in rubrics.
func DefaultRubrics() Rubrics {
	return Rubrics{
		Hard: `Be strict. Accept only if the account clearly and repeatedly covers the product's niche,
has an engaged audience of meaningful size for the platform, and shows no signs of spam,
bought followers or brand-unsafe content. When in doubt, reject.`,
		Medium: `Be lenient. Accept if the account's topics overlap the product's niche and its audience
would plausibly buy the product, even if the audience is small or coverage is occasional.
Reject obvious spam, bots and brand-unsafe content.`,
		Easy: `Be permissive. Accept any real, active account with a plausible connection to the product
or its customers. Reject only spam, bots, empty profiles and brand-unsafe content.`,
	}
}

// For returns the instruction for tier t.
func (r Rubrics) For(t model.Tier) string {
	switch t {
	case model.TierMedium:
		return r.Medium
	case model.TierEasy:
		return r.Easy
	default:
		return r.Hard
	}
}

// LoadRubrics reads a YAML file with a top-level "rubrics" key. Tiers the
// file leaves blank keep the built-in text.
func LoadRubrics(path string) (Rubrics, error) {
	out := DefaultRubrics()

	data, err := os.ReadFile(path)
	if err != nil {
		return out, eris.Wrapf(err, "evaluate: read rubrics %s", path)
	}

	var wrapper struct {
		Rubrics Rubrics `yaml:"rubrics"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return out, eris.Wrap(err, "evaluate: parse rubrics")
	}

	if s := strings.TrimSpace(wrapper.Rubrics.Hard); s != "" {
		out.Hard = s
	}
	if s := strings.TrimSpace(wrapper.Rubrics.Medium); s != "" {
		out.Medium = s
	}
	if s := strings.TrimSpace(wrapper.Rubrics.Easy); s != "" {
		out.Easy = s
	}
	return out, nil
}
