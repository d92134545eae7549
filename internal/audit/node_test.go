package audit

import (
	"encoding/json"
	"testing"

	"github.com/isony10/EntryChecker/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTree_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantGroup bool
		wantRule  string
		wantOp    string
		params    rules.Params
	}{
		{"full group", `{"id":0,"type":"group","op":"AND","items":[]}`, true, "", "AND", rules.Params{}},
		{"untyped group", `{"op":"OR","items":[{"cond":"round_million"}]}`, true, "", "OR", rules.Params{}},
		{"full leaf", `{"id":3,"type":"cond","rule":"amount_over","op":">","value":1000000,"target":"debit"}`,
			false, "amount_over", "", rules.Params{Op: ">", Value: "1000000", Target: "debit"}},
		{"short leaf", `{"cond":"keyword_search","value":"접대비","mode":"include"}`,
			false, "keyword_search", "", rules.Params{Value: "접대비", Mode: "include"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseTree([]byte(tt.in))
			require.NoError(t, err)
			require.NotNil(t, n)

			assert.Equal(t, tt.wantGroup, n.IsGroup())
			assert.Equal(t, tt.wantRule, n.Rule)
			assert.Equal(t, tt.wantOp, n.Op)
			assert.Equal(t, tt.params, n.Params)
		})
	}
}

func TestParseTree_NoTree(t *testing.T) {
	for _, in := range []string{"", "  ", "null", "{}", `{"id":7}`} {
		n, err := ParseTree([]byte(in))
		require.NoError(t, err, in)
		assert.Nil(t, n, in)
	}
}

func TestParseTree_Invalid(t *testing.T) {
	_, err := ParseTree([]byte(`{"type":"group","items":{}}`))
	assert.Error(t, err)
}

func TestParseTree_Nested(t *testing.T) {
	n, err := ParseTree([]byte(`{"type":"group","op":"AND","items":[
		{"type":"cond","rule":"weekend_txn"},
		{"type":"group","op":"OR","items":[{"cond":"round_million"},{"cond":"unbalanced_set"}]}
	]}`))
	require.NoError(t, err)

	require.Len(t, n.Items, 2)
	assert.False(t, n.Items[0].IsGroup())
	require.True(t, n.Items[1].IsGroup())
	assert.Equal(t, "unbalanced_set", n.Items[1].Items[1].Rule)
}

func TestLogicNode_MarshalRoundTrip(t *testing.T) {
	tree := Group("OR",
		Cond("amount_over", rules.Params{Op: ">=", Value: "500", Target: "credit"}),
		Group("AND"),
	)
	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"group","op":"OR","items":[
		{"type":"cond","rule":"amount_over","op":">=","value":"500","target":"credit"},
		{"type":"group","op":"AND","items":[]}
	]}`, string(data))

	back, err := ParseTree(data)
	require.NoError(t, err)
	assert.Equal(t, rules.Params{Op: ">=", Value: "500", Target: "credit"}, back.Items[0].Params)
}
