package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/isony10/EntryChecker/internal/rules"
)

const (
	nodeTypeGroup = "group"
	nodeTypeCond  = "cond"
)

// LogicNode is one node of a rule expression: either a leaf naming a rule with
// its parameters, or a group combining its items with AND or OR.
type LogicNode struct {
	// Type is "group" or "cond". It may be left empty and is then inferred.
	Type string
	// Op is the group combinator (AND, OR). Leaves keep their comparison in Params.Op.
	Op     string
	Items  []*LogicNode
	Rule   string
	Params rules.Params
}

// Group builds a group node.
func Group(op string, items ...*LogicNode) *LogicNode {
	return &LogicNode{Type: nodeTypeGroup, Op: op, Items: items}
}

// Cond builds a leaf node.
func Cond(rule string, p rules.Params) *LogicNode {
	return &LogicNode{Type: nodeTypeCond, Rule: rule, Params: p}
}

// IsGroup reports whether n combines child nodes.
func (n *LogicNode) IsGroup() bool {
	switch n.Type {
	case nodeTypeGroup:
		return true
	case "":
		return n.Rule == "" && (n.Items != nil || isCombinator(n.Op))
	default:
		return false
	}
}

// IsEmpty reports whether n carries neither a rule nor a group, like "{}".
func (n *LogicNode) IsEmpty() bool {
	return n == nil || (n.Type == "" && n.Rule == "" && n.Items == nil && n.Op == "" &&
		n.Params == (rules.Params{}))
}

func isCombinator(op string) bool {
	switch strings.ToUpper(strings.TrimSpace(op)) {
	case "AND", "OR":
		return true
	}
	return false
}

// wireNode is the JSON shape sent by clients. "cond" is the short-form leaf key.
type wireNode struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Type   string          `json:"type,omitempty"`
	Op     string          `json:"op,omitempty"`
	Items  []*LogicNode    `json:"items,omitempty"`
	Rule   string          `json:"rule,omitempty"`
	Cond   string          `json:"cond,omitempty"`
	Value  rules.Value     `json:"value,omitempty"`
	Target string          `json:"target,omitempty"`
	Mode   string          `json:"mode,omitempty"`
}

func (n *LogicNode) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("LogicNode: %w", err)
	}

	rule := w.Rule
	if rule == "" {
		rule = w.Cond
	}
	*n = LogicNode{
		Type:  strings.ToLower(strings.TrimSpace(w.Type)),
		Op:    w.Op,
		Items: w.Items,
		Rule:  strings.TrimSpace(rule),
	}
	if !n.IsGroup() {
		n.Op = ""
		n.Params = rules.Params{Op: w.Op, Value: w.Value, Target: w.Target, Mode: w.Mode}
	}
	return nil
}

func (n *LogicNode) MarshalJSON() ([]byte, error) {
	if n.IsGroup() {
		items := n.Items
		if items == nil {
			items = []*LogicNode{}
		}
		return json.Marshal(struct {
			Type  string       `json:"type"`
			Op    string       `json:"op"`
			Items []*LogicNode `json:"items"`
		}{nodeTypeGroup, n.Op, items})
	}
	return json.Marshal(wireNode{
		Type:   nodeTypeCond,
		Rule:   n.Rule,
		Op:     n.Params.Op,
		Value:  n.Params.Value,
		Target: n.Params.Target,
		Mode:   n.Params.Mode,
	})
}

// ParseTree decodes a logic tree. Blank input, "null" and "{}" mean no tree.
func ParseTree(data []byte) (*LogicNode, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var n LogicNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("ParseTree: %w", err)
	}
	if n.IsEmpty() {
		return nil, nil
	}
	return &n, nil
}
