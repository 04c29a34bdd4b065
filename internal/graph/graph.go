// Package graph provides the dependency graph that orders a plan's subtasks.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

var (
	// ErrCycleDetected indicates a circular dependency between subtasks.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrUnknownDependency indicates a prerequisite that is not in the plan.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateID indicates two subtasks share an ID.
	ErrDuplicateID = errors.New("duplicate subtask id")
)

// CycleError carries the path of the first cycle found.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// DependencyGraph is a directed graph of subtasks. Edges point from a
// subtask to its prerequisites.
type DependencyGraph struct {
	mu sync.RWMutex
	// order is the insertion order, used to keep sorting deterministic.
	order []string
	nodes map[string]*models.Subtask
	// edges maps subtask ID to the IDs it depends on.
	edges map[string][]string
	// completed tracks subtasks that finished successfully.
	completed map[string]bool
	logger    *zap.Logger
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Subtask),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the debug logger.
func (g *DependencyGraph) SetLogger(l *zap.Logger) {
	if l != nil {
		g.logger = l
	}
}

// Build registers subtasks and their prerequisite edges. Dependencies are
// taken only from declared prerequisites; nothing is inferred.
func (g *DependencyGraph) Build(subtasks []models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Debug("building dependency graph", zap.Int("subtasks", len(subtasks)))

	for i := range subtasks {
		st := &subtasks[i]
		if _, exists := g.nodes[st.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateID, st.ID)
		}
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
		g.order = append(g.order, st.ID)
	}

	for i := range subtasks {
		st := &subtasks[i]
		seen := make(map[string]bool, len(st.Prerequisites))
		for _, depID := range st.Prerequisites {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("%w: subtask %s depends on %s", ErrUnknownDependency, st.ID, depID)
			}
			if seen[depID] {
				continue
			}
			seen[depID] = true
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
	}

	if path := g.findCycleLocked(); path != nil {
		return &CycleError{Path: path}
	}
	return nil
}

// findCycleLocked runs a colored DFS and returns the first cycle path, or nil.
func (g *DependencyGraph) findCycleLocked() []string {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				for i, s := range stack {
					if s == depID {
						path := append([]string{}, stack[i:]...)
						return append(path, depID)
					}
				}
			case 0:
				if path := visit(depID); path != nil {
					return path
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return nil
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if path := visit(id); path != nil {
				return path
			}
		}
	}
	return nil
}

// TopologicalSort returns subtask IDs with every prerequisite before its
// dependents. Among independent subtasks the insertion order is kept.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if path := g.findCycleLocked(); path != nil {
		return nil, &CycleError{Path: path}
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ordered returns the subtasks in topological order.
func (g *DependencyGraph) Ordered() ([]models.Subtask, error) {
	ids, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]models.Subtask, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.nodes[id])
	}
	return out, nil
}

// Dependencies returns the dependsOn/blocks adjacency of every subtask.
func (g *DependencyGraph) Dependencies() map[string]models.Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()

	deps := make(map[string]models.Dependency, len(g.nodes))
	for _, id := range g.order {
		deps[id] = models.Dependency{
			DependsOn: append([]string{}, g.edges[id]...),
			Blocks:    []string{},
		}
	}
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			d := deps[depID]
			d.Blocks = append(d.Blocks, id)
			deps[depID] = d
		}
	}
	return deps
}

// MarkComplete records a successful subtask.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
	g.logger.Debug("subtask marked complete", zap.String("subtask", id))
}

// Unmet returns the prerequisites of id that have not completed.
func (g *DependencyGraph) Unmet(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var unmet []string
	for _, depID := range g.edges[id] {
		if !g.completed[depID] {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}
