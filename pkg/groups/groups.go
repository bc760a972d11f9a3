// Package groups resolves resource-group membership and approval chains.
package groups

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// Group is one resource group's membership configuration. Reviewers are the
// ordered approval chain; members may submit and control orders.
type Group struct {
	Members   []string `json:"members"`
	Reviewers []string `json:"reviewers"`
}

// StaticResolver answers group questions from configuration loaded at
// startup.
type StaticResolver struct {
	groups map[string]Group
}

// NewStaticResolver creates a resolver over the given groups.
func NewStaticResolver(groups map[string]Group) *StaticResolver {
	return &StaticResolver{groups: groups}
}

// LoadFromFile reads a JSON object of group ID to group configuration.
func LoadFromFile(path string) (*StaticResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}

	var groups map[string]Group
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse groups file: %w", err)
	}

	return NewStaticResolver(groups), nil
}

// IsMember reports whether user belongs to the group, as a member or a
// reviewer.
func (r *StaticResolver) IsMember(_ context.Context, user, groupID string) (bool, error) {
	group, ok := r.groups[groupID]
	if !ok {
		return false, fmt.Errorf("unknown resource group %q", groupID)
	}

	return slices.Contains(group.Members, user) || slices.Contains(group.Reviewers, user), nil
}

// Reviewers returns the group's ordered approval chain.
func (r *StaticResolver) Reviewers(_ context.Context, groupID string) ([]string, error) {
	group, ok := r.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("unknown resource group %q", groupID)
	}

	return slices.Clone(group.Reviewers), nil
}
