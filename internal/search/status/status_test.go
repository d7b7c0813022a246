package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-workers/internal/search/predicate"
)

func clause(archived bool, statuses ...interface{}) predicate.Node {
	return predicate.And{Nodes: []predicate.Node{
		predicate.Equals{Column: ColumnArchived, Value: archived},
		predicate.InList{Column: ColumnStatus, Values: statuses},
	}}
}

func TestResolve_Taxonomy(t *testing.T) {
	tests := []struct {
		name     string
		token    interface{}
		expected predicate.Node
	}{
		{"active", "Active", clause(false, "Active")},
		{"pending", "Pending", clause(false, "Pending", "Active Under Contract")},
		{"under agreement", "Under Agreement", clause(false, "Pending", "Active Under Contract")},
		{"sold", "Sold", clause(true, "Closed")},
		{"empty string", "", clause(false, "Active")},
		{"invalid token", "foreclosed", clause(false, "Active")},
		{"nil", nil, clause(false, "Active")},
		{"wrong type", 42, clause(false, "Active")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(tt.token))
		})
	}
}

func TestResolve_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Resolve("Sold"), Resolve("SOLD"))
	assert.Equal(t, Resolve("Under Agreement"), Resolve("  under   AGREEMENT "))
	assert.Equal(t, Resolve("pending"), Resolve("under agreement"))
}

func TestResolve_MultiCategory(t *testing.T) {
	expected := predicate.Or{Nodes: []predicate.Node{
		clause(false, "Active"),
		clause(true, "Closed"),
	}}

	assert.Equal(t, expected, Resolve("Active,Sold"))
	assert.Equal(t, expected, Resolve([]interface{}{"active", "sold"}))
	assert.Equal(t, expected, Resolve([]string{"Active", "Sold"}))
}

func TestResolve_DuplicatesCollapse(t *testing.T) {
	// Pending and Under Agreement are the same category.
	assert.Equal(t, clause(false, "Pending", "Active Under Contract"), Resolve("Pending,Under Agreement"))
	// an unknown token falls back to Active and merges with it
	assert.Equal(t, clause(false, "Active"), Resolve("Active,bogus"))
}

func TestIncludesArchived(t *testing.T) {
	assert.True(t, IncludesArchived("Sold"))
	assert.True(t, IncludesArchived("active,sold"))
	assert.False(t, IncludesArchived("Active"))
	assert.False(t, IncludesArchived("Pending"))
	assert.False(t, IncludesArchived(""))
	assert.False(t, IncludesArchived(nil))
}

func TestLookup(t *testing.T) {
	c, ok := Lookup("UNDER AGREEMENT")
	require.True(t, ok)
	assert.Equal(t, "Pending", c.Name)
	assert.False(t, c.Archived)

	_, ok = Lookup("withdrawn")
	assert.False(t, ok)

	assert.Equal(t, "Active", Default().Name)
}

func TestCategories_RendersStable(t *testing.T) {
	sql, args, err := predicate.Render(Resolve("Pending"), 1)
	require.NoError(t, err)
	assert.Equal(t, `"is_archived" = $1 AND "standard_status" IN ($2, $3)`, sql)
	assert.Equal(t, []interface{}{false, "Pending", "Active Under Contract"}, args)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"active", "pending", "sold", "under agreement"}, Tokens())
	for _, tok := range Tokens() {
		_, ok := Lookup(tok)
		assert.True(t, ok, tok)
	}
}
