package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/xiaot623/conclave/internal/domain"
)

// maxNameDistance is how far a classifier-supplied name may be from a known role.
const maxNameDistance = 2

type classifierReply struct {
	RouteTo   json.RawMessage `json:"route_to"`
	Reasoning string          `json:"reasoning"`
}

// parseReply extracts the routed roles from a classifier reply. The reply may
// wrap the JSON object in prose or code fences.
func parseReply(reply string, known []domain.RoleName) ([]domain.RoleName, string, error) {
	parsed, err := firstObject(reply)
	if err != nil {
		return nil, "", err
	}

	names, err := routeNames(parsed.RouteTo)
	if err != nil {
		return nil, "", err
	}

	var roles []domain.RoleName
	seen := make(map[domain.RoleName]bool)
	for _, name := range names {
		role, ok := resolveRole(name, known)
		if !ok || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, "", fmt.Errorf("no known roles in %v", names)
	}
	return roles, strings.TrimSpace(parsed.Reasoning), nil
}

func firstObject(reply string) (*classifierReply, error) {
	data := []byte(reply)
	for i := bytes.IndexByte(data, '{'); i >= 0; {
		var parsed classifierReply
		dec := json.NewDecoder(bytes.NewReader(data[i:]))
		if err := dec.Decode(&parsed); err == nil && len(parsed.RouteTo) > 0 {
			return &parsed, nil
		}
		next := bytes.IndexByte(data[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, errors.New("no routing object in classifier reply")
}

// routeNames accepts either a list of names or a single name.
func routeNames(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	return nil, fmt.Errorf("route_to has unexpected shape: %s", raw)
}

func normaliseName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	if n != "" && !strings.HasSuffix(n, "_expert") {
		n += "_expert"
	}
	return n
}

// resolveRole maps a name to a known role, exactly or by edit distance.
func resolveRole(name string, known []domain.RoleName) (domain.RoleName, bool) {
	n := normaliseName(name)
	if n == "" {
		return "", false
	}

	best, bestDist := domain.RoleName(""), maxNameDistance+1
	for _, role := range known {
		if n == string(role) {
			return role, true
		}
		if d := levenshtein.ComputeDistance(n, string(role)); d < bestDist {
			best, bestDist = role, d
		}
	}
	return best, best != ""
}
