package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pickboard/internal/ir"
)

// DefaultList is used for items and steps that name no list.
const DefaultList = "L1"

// Scenario describes an initial load, a sequence of steps and the
// expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// List is the default list id. Defaults to DefaultList.
	List string `yaml:"list,omitempty"`

	Config Config     `yaml:"config,omitempty"`
	Items  []ItemSpec `yaml:"items"`
	Steps  []Step     `yaml:"steps"`
	Expect Expect     `yaml:"expect,omitempty"`
}

// Config overrides engine timings. Empty values keep engine defaults.
type Config struct {
	Fade              string `yaml:"fade,omitempty"`
	SuppressionWindow string `yaml:"suppression_window,omitempty"`
}

// ItemSpec is one item of the initial load.
type ItemSpec struct {
	List       string `yaml:"list,omitempty"`
	ID         string `yaml:"id"`
	Key        string `yaml:"key"`
	State      string `yaml:"state"`
	Substitute string `yaml:"substitute,omitempty"`
}

// Step is one scenario step. Exactly one field is set.
type Step struct {
	Local     *LocalStep     `yaml:"local,omitempty"`
	Remote    *RemoteStep    `yaml:"remote,omitempty"`
	Advance   string         `yaml:"advance,omitempty"`
	Settle    bool           `yaml:"settle,omitempty"`
	FailFetch *bool          `yaml:"fail_fetch,omitempty"`
	Duplicate *DuplicateStep `yaml:"duplicate,omitempty"`
}

// LocalStep is the viewer's own action.
type LocalStep struct {
	ID         string `yaml:"id"`
	State      string `yaml:"state"`
	Substitute string `yaml:"substitute,omitempty"`
}

// RemoteStep is a push notification.
type RemoteStep struct {
	ID         string `yaml:"id"`
	State      string `yaml:"state"`
	List       string `yaml:"list,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Substitute string `yaml:"substitute,omitempty"`

	// Inline ships the fragment inside the notification.
	Inline bool `yaml:"inline,omitempty"`

	// Stale leaves the server truth untouched, so a fetch returns the
	// previous fragment.
	Stale bool `yaml:"stale,omitempty"`
}

// DuplicateStep renders an extra node for an item.
type DuplicateStep struct {
	ID   string `yaml:"id"`
	List string `yaml:"list"`
}

// Expect is checked after the last step. Nil fields are not checked.
type Expect struct {
	Order        map[string][]string `yaml:"order,omitempty"`
	State        map[string]string   `yaml:"state,omitempty"`
	Animations   *int                `yaml:"animations,omitempty"`
	Suppressed   *int                `yaml:"suppressed,omitempty"`
	Fetches      *int                `yaml:"fetches,omitempty"`
	StaleFetches *int                `yaml:"stale_fetches,omitempty"`
	Reloads      *int                `yaml:"reloads,omitempty"`
	Duplicates   *int                `yaml:"duplicates,omitempty"`
}

// LoadScenario reads, schema-checks and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	// Parse YAML with strict field validation
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.List == "" {
		scenario.List = DefaultList
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot express.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for name, d := range map[string]string{"fade": s.Config.Fade, "suppression_window": s.Config.SuppressionWindow} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config.%s: %w", name, err)
		}
	}

	for i, it := range s.Items {
		if _, ok := ir.ParseStateTag(it.State); !ok {
			return fmt.Errorf("items[%d]: unknown state %q", i, it.State)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st Step) error {
	set := 0
	if st.Local != nil {
		set++
	}
	if st.Remote != nil {
		set++
	}
	if st.Advance != "" {
		set++
		if _, err := time.ParseDuration(st.Advance); err != nil {
			return fmt.Errorf("steps[%d].advance: %w", index, err)
		}
	}
	if st.Settle {
		set++
	}
	if st.FailFetch != nil {
		set++
	}
	if st.Duplicate != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}
	return nil
}

func (s *Scenario) fade() (time.Duration, bool) {
	return parseOptional(s.Config.Fade)
}

func (s *Scenario) suppressionWindow() (time.Duration, bool) {
	return parseOptional(s.Config.SuppressionWindow)
}

// parseOptional assumes validateScenario already accepted v.
func parseOptional(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	return d, err == nil
}

// describe renders a step for the trace.
func (st Step) describe() string {
	switch {
	case st.Local != nil:
		out := fmt.Sprintf("local %s %s", st.Local.ID, st.Local.State)
		if st.Local.Substitute != "" {
			out += fmt.Sprintf(" -> %q", st.Local.Substitute)
		}
		return out
	case st.Remote != nil:
		out := fmt.Sprintf("remote %s %s", st.Remote.ID, st.Remote.State)
		if st.Remote.Inline {
			out += " inline"
		}
		if st.Remote.Stale {
			out += " stale"
		}
		return out
	case st.Advance != "":
		return "advance " + st.Advance
	case st.Settle:
		return "settle"
	case st.FailFetch != nil:
		return fmt.Sprintf("fail_fetch %t", *st.FailFetch)
	case st.Duplicate != nil:
		return fmt.Sprintf("duplicate %s in %s", st.Duplicate.ID, st.Duplicate.List)
	}
	return "noop"
}
