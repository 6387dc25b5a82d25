package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"
)

// OpenClawFile is the subset of openclaw.json that gatewatch reads. The file
// is JSON with comments and trailing commas.
type OpenClawFile struct {
	Gateway struct {
		Port int `json:"port"`
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	} `json:"gateway"`

	// Agents is either {"list": [{"id": ...}]} or an object keyed by id.
	Agents json.RawMessage `json:"agents"`
}

// ParseOpenClaw decodes openclaw.json content.
func ParseOpenClaw(data []byte) (*OpenClawFile, error) {
	var f OpenClawFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return nil, fmt.Errorf("parse openclaw.json: %w", err)
	}
	return &f, nil
}

// LoadOpenClaw reads and parses openclaw.json at path.
func LoadOpenClaw(path string) (*OpenClawFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read openclaw.json: %w", err)
	}
	return ParseOpenClaw(data)
}

// AgentIDs returns the agent ids declared in the file.
func (f *OpenClawFile) AgentIDs() []string {
	if len(f.Agents) == 0 {
		return nil
	}
	var listed struct {
		List []struct {
			ID string `json:"id"`
		} `json:"list"`
	}
	if err := json.Unmarshal(f.Agents, &listed); err == nil && len(listed.List) > 0 {
		ids := make([]string, 0, len(listed.List))
		for _, a := range listed.List {
			if a.ID != "" {
				ids = append(ids, a.ID)
			}
		}
		return ids
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(f.Agents, &keyed); err != nil {
		return nil
	}
	ids := make([]string, 0, len(keyed))
	for id := range keyed {
		if id == "defaults" || id == "list" {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// KnownAgents returns the sorted union of agent ids declared in
// <openclawDir>/openclaw.json and the directories under <openclawDir>/agents.
// Missing files contribute nothing.
func KnownAgents(openclawDir string) ([]string, error) {
	seen := make(map[string]bool)

	f, err := LoadOpenClaw(filepath.Join(openclawDir, "openclaw.json"))
	switch {
	case err == nil:
		for _, id := range f.AgentIDs() {
			seen[id] = true
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	dirents, err := os.ReadDir(filepath.Join(openclawDir, "agents"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read agents dir: %w", err)
	}
	for _, de := range dirents {
		if de.IsDir() {
			seen[de.Name()] = true
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
