package routing

import (
	"fmt"
	"os"
	"strings"

	"github.com/upb/gen-orchestrator/services/providers"
	"gopkg.in/yaml.v3"
)

// Policy is the task kind to ordered provider list table consulted when a
// caller does not name providers. It is read-only after construction.
type Policy struct {
	table map[providers.TaskKind][]string
}

// NewPolicy copies table into a new Policy
func NewPolicy(table map[providers.TaskKind][]string) *Policy {
	p := &Policy{table: make(map[providers.TaskKind][]string, len(table))}
	for kind, ids := range table {
		p.table[kind] = cloneIDs(ids)
	}
	return p
}

// DefaultPolicy returns the built-in provider preferences
func DefaultPolicy() *Policy {
	return NewPolicy(map[providers.TaskKind][]string{
		providers.TaskVoice: {"elevenlabs", "playht"},
		providers.TaskImage: {"openai", "stability"},
		providers.TaskVideo: {"replicate", "runway"},
		providers.TaskText:  {"openai", "anthropic"},
	})
}

// Providers returns a copy of the list for kind, or nil when kind has no entry
func (p *Policy) Providers(kind providers.TaskKind) []string {
	ids, ok := p.table[kind]
	if !ok {
		return nil
	}
	return cloneIDs(ids)
}

// Table returns a copy of the whole policy
func (p *Policy) Table() map[providers.TaskKind][]string {
	out := make(map[providers.TaskKind][]string, len(p.table))
	for kind, ids := range p.table {
		out[kind] = cloneIDs(ids)
	}
	return out
}

func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// policyFile is the on-disk shape:
//
//	tasks:
//	  image: [openai, stability]
//	  voice_clone: [elevenlabs]
type policyFile struct {
	Tasks map[string][]string `yaml:"tasks"`
}

// LoadPolicy reads a policy from a YAML file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy. Task keys may be kinds or their legacy
// aliases; provider ids must be non-empty.
func ParsePolicy(data []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("policy defines no tasks")
	}

	table := make(map[providers.TaskKind][]string, len(file.Tasks))
	for name, ids := range file.Tasks {
		kind, err := providers.ParseTaskKind(name)
		if err != nil {
			return nil, fmt.Errorf("policy task %q: %w", name, err)
		}
		if _, dup := table[kind]; dup {
			return nil, fmt.Errorf("policy task %q declared twice", kind)
		}
		for i, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				return nil, fmt.Errorf("policy task %q: provider %d is empty", name, i)
			}
			ids[i] = id
		}
		table[kind] = ids
	}

	return NewPolicy(table), nil
}
