package grapher

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yourbasic/graph"

	"github.com/livebydesign2/supa-seed-sub002/pkg/models"
)

// Edge weights in the dependency graph. Mandatory (NOT NULL) foreign keys
// weigh less than optional ones so break-point selection can prefer
// relaxing a nullable edge.
const (
	mandatoryEdgeWeight = int64(1)
	optionalEdgeWeight  = int64(2)
)

// RelationshipGrapher builds the table dependency graph, detects cycles,
// and computes the seeding order
type RelationshipGrapher struct {
	Logger *logrus.Logger

	tables        []string
	relationships []models.Relationship
	tableIndex    map[string]int
	indexTable    map[int]string
	depGraph      *graph.Mutable
}

// NewRelationshipGrapher creates a new relationship grapher
func NewRelationshipGrapher(logger *logrus.Logger) *RelationshipGrapher {
	return &RelationshipGrapher{
		Logger:     logger,
		tableIndex: make(map[string]int),
		indexTable: make(map[int]string),
	}
}

// BuildGraph analyzes tables and relationship edges into a RelationshipGraph
func (rg *RelationshipGrapher) BuildGraph(tables []string, relationships []models.Relationship) *models.RelationshipGraph {
	rg.tables = tables
	rg.relationships = relationships
	rg.tableIndex = make(map[string]int, len(tables))
	rg.indexTable = make(map[int]string, len(tables))
	for i, t := range tables {
		rg.tableIndex[t] = i
		rg.indexTable[i] = t
	}

	result := &models.RelationshipGraph{
		Nodes:             make(map[string]*models.TableNode),
		DependencyLevels:  make(map[string]int),
		SeedingStrategies: make(map[string]models.SeedingStrategy),
	}

	for _, t := range tables {
		result.Nodes[t] = &models.TableNode{Table: t}
	}

	rg.depGraph = graph.New(len(tables))
	for _, rel := range relationships {
		from, okFrom := rg.tableIndex[rel.FromTable]
		to, okTo := rg.tableIndex[rel.ToTable]
		if !okFrom || !okTo {
			continue
		}
		// Self-references never participate in ordering
		if from == to {
			continue
		}
		result.Edges = append(result.Edges, rel)

		weight := mandatoryEdgeWeight
		if rel.IsNullable {
			weight = optionalEdgeWeight
		}
		rg.depGraph.AddCost(from, to, weight)

		fromNode := result.Nodes[rel.FromTable]
		toNode := result.Nodes[rel.ToTable]
		if !contains(fromNode.Dependencies, rel.ToTable) {
			fromNode.Dependencies = append(fromNode.Dependencies, rel.ToTable)
		}
		if !contains(toNode.Dependents, rel.FromTable) {
			toNode.Dependents = append(toNode.Dependents, rel.FromTable)
		}
	}

	for _, node := range result.Nodes {
		node.Type = classifyNode(node)
	}

	if graph.Acyclic(rg.depGraph) {
		rg.Logger.Debugf("Dependency graph is acyclic (%d tables, %d edges)", len(tables), len(result.Edges))
	} else {
		result.Cycles = rg.detectCycles()
		for _, cycle := range result.Cycles {
			result.Warnings = append(result.Warnings,
				"circular dependency: "+strings.Join(cycle.Tables, " -> ")+
					" (break via "+cycle.BreakPoint.FromTable+"."+cycle.BreakPoint.Column+", "+string(cycle.BreakPoint.Strategy)+")")
		}
		rg.Logger.Warningf("Detected %d dependency cycle(s)", len(result.Cycles))
	}

	cyclePartners := partnersFromCycles(result.Cycles)
	result.SeedingOrder = rg.computeSeedingOrder(result, cyclePartners)
	result.DependencyLevels = rg.computeDependencyLevels(result, cyclePartners)

	for table, node := range result.Nodes {
		switch {
		case len(cyclePartners[table]) > 0:
			result.SeedingStrategies[table] = models.CircularSeeding
		case len(node.Dependencies) == 0:
			result.SeedingStrategies[table] = models.IndependentSeeding
		default:
			result.SeedingStrategies[table] = models.DependentSeeding
		}
	}

	return result
}

func classifyNode(node *models.TableNode) models.NodeType {
	switch {
	case len(node.Dependencies) == 0:
		return models.RootNode
	case len(node.Dependents) == 0:
		return models.LeafNode
	default:
		return models.IntermediateNode
	}
}

// detectCycles runs a depth-first search with an explicit recursion stack.
// A node revisited while still on the stack closes a cycle.
func (rg *RelationshipGrapher) detectCycles() []models.DependencyCycle {
	var cycles []models.DependencyCycle
	visited := make(map[int]bool)
	onStack := make(map[int]bool)
	var stack []int
	seen := make(map[string]bool)

	var dfs func(v int)
	dfs = func(v int) {
		visited[v] = true
		onStack[v] = true
		stack = append(stack, v)

		rg.depGraph.Visit(v, func(w int, _ int64) bool {
			if !visited[w] {
				dfs(w)
			} else if onStack[w] {
				// Slice the stack from the first occurrence of w to close the cycle
				var tables []string
				for i := len(stack) - 1; i >= 0; i-- {
					tables = append([]string{rg.indexTable[stack[i]]}, tables...)
					if stack[i] == w {
						break
					}
				}
				key := cycleKey(tables)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, models.DependencyCycle{
						Tables:     tables,
						BreakPoint: rg.chooseBreakPoint(tables),
					})
				}
			}
			return false
		})

		stack = stack[:len(stack)-1]
		onStack[v] = false
	}

	for i := range rg.tables {
		if !visited[i] {
			dfs(i)
		}
	}

	return cycles
}

// cycleKey normalizes a cycle's table set so rotations dedupe
func cycleKey(tables []string) string {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// chooseBreakPoint picks the edge to relax for one cycle: a nullable
// foreign key if any edge of the cycle has one, otherwise the last edge
// marked for deferred-constraint handling.
func (rg *RelationshipGrapher) chooseBreakPoint(cycleTables []string) models.CycleBreakPoint {
	inCycle := make(map[string]bool, len(cycleTables))
	for _, t := range cycleTables {
		inCycle[t] = true
	}

	var fallback *models.Relationship
	for i := range rg.relationships {
		rel := &rg.relationships[i]
		if !inCycle[rel.FromTable] || !inCycle[rel.ToTable] {
			continue
		}
		if rel.IsNullable {
			return models.CycleBreakPoint{
				FromTable: rel.FromTable,
				ToTable:   rel.ToTable,
				Column:    rel.FromColumn,
				Strategy:  models.AllowNullBreak,
			}
		}
		fallback = rel
	}

	if fallback != nil {
		return models.CycleBreakPoint{
			FromTable: fallback.FromTable,
			ToTable:   fallback.ToTable,
			Column:    fallback.FromColumn,
			Strategy:  models.DeferConstraintBreak,
		}
	}
	return models.CycleBreakPoint{Strategy: models.DeferConstraintBreak}
}

// partnersFromCycles maps each table to the set of tables it shares a cycle with
func partnersFromCycles(cycles []models.DependencyCycle) map[string]map[string]bool {
	partners := make(map[string]map[string]bool)
	for _, cycle := range cycles {
		for _, a := range cycle.Tables {
			if partners[a] == nil {
				partners[a] = make(map[string]bool)
			}
			for _, b := range cycle.Tables {
				if a != b {
					partners[a][b] = true
				}
			}
		}
	}
	return partners
}

// computeSeedingOrder emits root tables first (by priority), then any table
// whose dependencies are emitted or are only blocked by cycle partners,
// then leftovers in discovery order.
func (rg *RelationshipGrapher) computeSeedingOrder(g *models.RelationshipGraph, cyclePartners map[string]map[string]bool) []string {
	var order []string
	emitted := make(map[string]bool)

	var roots []string
	var pending []string
	for _, t := range rg.tables {
		if len(g.Nodes[t].Dependencies) == 0 {
			roots = append(roots, t)
		} else {
			pending = append(pending, t)
		}
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return rg.tablePriority(g, roots[i]) > rg.tablePriority(g, roots[j])
	})
	for _, t := range roots {
		order = append(order, t)
		emitted[t] = true
	}

	for len(pending) > 0 {
		progress := false
		for i := 0; i < len(pending); i++ {
			table := pending[i]
			ready := true
			for _, dep := range g.Nodes[table].Dependencies {
				if emitted[dep] {
					continue
				}
				if cyclePartners[table][dep] {
					continue
				}
				ready = false
				break
			}
			if ready {
				order = append(order, table)
				emitted[table] = true
				pending = append(pending[:i], pending[i+1:]...)
				i--
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	// Should be empty given correct cycle handling; keep discovery order if not
	for _, table := range pending {
		rg.Logger.Warningf("Table %s could not be ordered by dependencies, appending as-is", table)
		order = append(order, table)
	}

	return order
}

// tablePriority favors identity-like tables and penalizes high fan-in
func (rg *RelationshipGrapher) tablePriority(g *models.RelationshipGraph, table string) int {
	priority := 0
	name := strings.ToLower(table)
	for _, hint := range []string{"user", "account", "profile", "auth", "identit", "member", "person"} {
		if strings.Contains(name, hint) {
			priority += 10
			break
		}
	}
	priority -= len(g.Nodes[table].Dependencies)
	return priority
}

// computeDependencyLevels assigns each table 1 + max(level of dependencies),
// with cycle partnership treated as level-neutral
func (rg *RelationshipGrapher) computeDependencyLevels(g *models.RelationshipGraph, cyclePartners map[string]map[string]bool) map[string]int {
	levels := make(map[string]int)
	inProgress := make(map[string]bool)

	var levelOf func(table string) int
	levelOf = func(table string) int {
		if level, ok := levels[table]; ok {
			return level
		}
		if inProgress[table] {
			return 0
		}
		inProgress[table] = true
		defer delete(inProgress, table)

		level := 0
		for _, dep := range g.Nodes[table].Dependencies {
			if cyclePartners[table][dep] {
				continue
			}
			if depLevel := levelOf(dep) + 1; depLevel > level {
				level = depLevel
			}
		}
		levels[table] = level
		return level
	}

	for _, t := range rg.tables {
		levelOf(t)
	}
	return levels
}

// CanSeedInParallel reports whether two tables can be seeded concurrently:
// same dependency level and no edge between them in either direction
func CanSeedInParallel(g *models.RelationshipGraph, a, b string) bool {
	if a == b {
		return false
	}
	la, okA := g.DependencyLevels[a]
	lb, okB := g.DependencyLevels[b]
	if !okA || !okB || la != lb {
		return false
	}
	for _, edge := range g.Edges {
		if (edge.FromTable == a && edge.ToTable == b) || (edge.FromTable == b && edge.ToTable == a) {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
