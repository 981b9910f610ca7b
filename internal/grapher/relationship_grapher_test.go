package grapher

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBuildGraphAcyclicChain(t *testing.T) {
	rg := NewRelationshipGrapher(testLogger())
	tables := []string{"posts", "profiles", "accounts"}
	rels := []models.Relationship{
		{FromTable: "profiles", FromColumn: "account_id", ToTable: "accounts", ToColumn: "id"},
		{FromTable: "posts", FromColumn: "author_id", ToTable: "profiles", ToColumn: "id"},
	}

	g := rg.BuildGraph(tables, rels)

	assert.Empty(t, g.Cycles)
	assert.Equal(t, []string{"accounts", "profiles", "posts"}, g.SeedingOrder)
	assert.Equal(t, 0, g.DependencyLevels["accounts"])
	assert.Equal(t, 1, g.DependencyLevels["profiles"])
	assert.Equal(t, 2, g.DependencyLevels["posts"])

	assert.Equal(t, models.RootNode, g.Nodes["accounts"].Type)
	assert.Equal(t, models.IntermediateNode, g.Nodes["profiles"].Type)
	assert.Equal(t, models.LeafNode, g.Nodes["posts"].Type)

	assert.Equal(t, models.IndependentSeeding, g.SeedingStrategies["accounts"])
	assert.Equal(t, models.DependentSeeding, g.SeedingStrategies["profiles"])
	assert.Equal(t, models.DependentSeeding, g.SeedingStrategies["posts"])
}

func TestSeedingOrderIsDeterministic(t *testing.T) {
	tables := []string{"comments", "posts", "tags", "profiles", "accounts"}
	rels := []models.Relationship{
		{FromTable: "profiles", FromColumn: "account_id", ToTable: "accounts", ToColumn: "id"},
		{FromTable: "posts", FromColumn: "author_id", ToTable: "profiles", ToColumn: "id"},
		{FromTable: "comments", FromColumn: "post_id", ToTable: "posts", ToColumn: "id"},
		{FromTable: "comments", FromColumn: "author_id", ToTable: "profiles", ToColumn: "id"},
	}

	first := NewRelationshipGrapher(testLogger()).BuildGraph(tables, rels)
	for i := 0; i < 5; i++ {
		again := NewRelationshipGrapher(testLogger()).BuildGraph(tables, rels)
		require.Equal(t, first.SeedingOrder, again.SeedingOrder)
		require.Equal(t, first.DependencyLevels, again.DependencyLevels)
	}
}

func TestRootPriorityFavorsIdentityTables(t *testing.T) {
	rg := NewRelationshipGrapher(testLogger())
	g := rg.BuildGraph([]string{"tags", "accounts", "categories"}, nil)

	require.Len(t, g.SeedingOrder, 3)
	assert.Equal(t, "accounts", g.SeedingOrder[0])
}

func TestCycleBrokenAtNullableEdge(t *testing.T) {
	rg := NewRelationshipGrapher(testLogger())
	tables := []string{"accounts", "profiles", "subscriptions"}
	rels := []models.Relationship{
		{FromTable: "accounts", FromColumn: "owner_profile_id", ToTable: "profiles", ToColumn: "id"},
		{FromTable: "profiles", FromColumn: "subscription_id", ToTable: "subscriptions", ToColumn: "id"},
		{FromTable: "subscriptions", FromColumn: "account_id", ToTable: "accounts", ToColumn: "id", IsNullable: true},
	}

	g := rg.BuildGraph(tables, rels)

	require.Len(t, g.Cycles, 1)
	cycle := g.Cycles[0]
	assert.ElementsMatch(t, tables, cycle.Tables)
	assert.Equal(t, "subscriptions", cycle.BreakPoint.FromTable)
	assert.Equal(t, "account_id", cycle.BreakPoint.Column)
	assert.Equal(t, models.AllowNullBreak, cycle.BreakPoint.Strategy)

	assert.Len(t, g.SeedingOrder, 3, "every table must still be ordered")
	for _, table := range tables {
		assert.Equal(t, models.CircularSeeding, g.SeedingStrategies[table])
	}
	assert.NotEmpty(t, g.Warnings)
}

func TestCycleWithoutNullableEdgeDefersConstraint(t *testing.T) {
	rg := NewRelationshipGrapher(testLogger())
	rels := []models.Relationship{
		{FromTable: "a", FromColumn: "b_id", ToTable: "b", ToColumn: "id"},
		{FromTable: "b", FromColumn: "a_id", ToTable: "a", ToColumn: "id"},
	}

	g := rg.BuildGraph([]string{"a", "b"}, rels)

	require.Len(t, g.Cycles, 1)
	assert.Equal(t, models.DeferConstraintBreak, g.Cycles[0].BreakPoint.Strategy)
}

func TestSelfReferenceIgnored(t *testing.T) {
	rg := NewRelationshipGrapher(testLogger())
	rels := []models.Relationship{
		{FromTable: "categories", FromColumn: "parent_id", ToTable: "categories", ToColumn: "id", IsNullable: true},
	}

	g := rg.BuildGraph([]string{"categories"}, rels)

	assert.Empty(t, g.Cycles)
	assert.Empty(t, g.Edges)
	assert.Equal(t, []string{"categories"}, g.SeedingOrder)
}

func TestCanSeedInParallel(t *testing.T) {
	rg := NewRelationshipGrapher(testLogger())
	tables := []string{"accounts", "posts", "profiles", "tags"}
	rels := []models.Relationship{
		{FromTable: "posts", FromColumn: "account_id", ToTable: "accounts", ToColumn: "id"},
		{FromTable: "profiles", FromColumn: "account_id", ToTable: "accounts", ToColumn: "id"},
	}

	g := rg.BuildGraph(tables, rels)

	assert.True(t, CanSeedInParallel(g, "posts", "profiles"), "same level, no edge")
	assert.True(t, CanSeedInParallel(g, "accounts", "tags"), "independent roots")
	assert.False(t, CanSeedInParallel(g, "posts", "accounts"), "edge between tables")
	assert.False(t, CanSeedInParallel(g, "accounts", "profiles"), "different levels")
	assert.False(t, CanSeedInParallel(g, "posts", "posts"), "a table is never parallel with itself")
}
