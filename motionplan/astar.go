package motionplan

import (
	"container/heap"
	"context"
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/gridnav/logging"
)

// ctxCheckInterval is how many expansions happen between context checks.
const ctxCheckInterval = 256

// boundsMargin absorbs floating point error when grid states land exactly on the bounds.
const boundsMargin = 1e-9

type gridKey struct {
	x, y int64
}

// eight-connected successors, in grid steps.
var successorSteps = [8][2]int64{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// AStar searches a lattice of spacing PlanRequest.Resolution with eight-connected moves,
// Euclidean step cost and a Euclidean heuristic. The start and goal states are always treated
// as free; every other state must lie within the request bounds and be free in the occupancy.
type AStar struct {
	logger logging.Logger
	// MaxExpansions bounds the number of expanded states. Zero means unbounded.
	MaxExpansions int
}

// NewAStar returns an A* planner.
func NewAStar(logger logging.Logger) *AStar {
	return &AStar{logger: logger}
}

// Plan runs the search to completion, returning ErrNoPath when the goal is unreachable.
func (a *AStar) Plan(ctx context.Context, req *PlanRequest) (Path, error) {
	if req == nil {
		return nil, NewInvalidRequestError("nil request")
	}
	if req.Resolution <= 0 {
		return nil, NewInvalidRequestError("resolution must be positive")
	}
	if req.Occupancy == nil {
		return nil, NewInvalidRequestError("no occupancy")
	}

	res := req.Resolution
	toKey := func(p r2.Point) gridKey {
		return gridKey{int64(math.Round(p.X / res)), int64(math.Round(p.Y / res))}
	}
	toPoint := func(k gridKey) r2.Point {
		return r2.Point{X: float64(k.x) * res, Y: float64(k.y) * res}
	}
	startKey, goalKey := toKey(req.Start), toKey(req.Goal)
	bounds := req.Bounds.ExpandedByMargin(boundsMargin)
	free := func(k gridKey) bool {
		if k == startKey || k == goalKey {
			return true
		}
		p := toPoint(k)
		return bounds.ContainsPoint(p) && req.Occupancy.IsFree(p)
	}
	heuristic := func(k gridKey) float64 {
		return toPoint(k).Sub(toPoint(goalKey)).Norm()
	}

	gScore := map[gridKey]float64{startKey: 0}
	cameFrom := map[gridKey]gridKey{}
	closed := map[gridKey]struct{}{}
	open := &openSet{}
	heap.Push(open, &openItem{key: startKey, f: heuristic(startKey), h: heuristic(startKey)})

	expansions := 0
	for open.Len() > 0 {
		if expansions%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		current := heap.Pop(open).(*openItem)
		if _, done := closed[current.key]; done {
			continue
		}
		if current.key == goalKey {
			path := reconstruct(cameFrom, goalKey, startKey, toPoint)
			path[0] = req.Start
			path[len(path)-1] = req.Goal
			if a.logger != nil {
				a.logger.Debugw("A* found path", "states", len(path), "expansions", expansions, "cost", gScore[goalKey])
			}
			return path, nil
		}
		closed[current.key] = struct{}{}
		expansions++
		if a.MaxExpansions > 0 && expansions > a.MaxExpansions {
			break
		}

		for _, step := range successorSteps {
			next := gridKey{current.key.x + step[0], current.key.y + step[1]}
			if _, done := closed[next]; done {
				continue
			}
			if !free(next) {
				continue
			}
			tentative := gScore[current.key] + res*math.Hypot(float64(step[0]), float64(step[1]))
			if old, seen := gScore[next]; seen && tentative >= old {
				continue
			}
			gScore[next] = tentative
			cameFrom[next] = current.key
			h := heuristic(next)
			heap.Push(open, &openItem{key: next, f: tentative + h, h: h})
		}
	}

	if a.logger != nil {
		a.logger.Debugw("A* exhausted search space", "expansions", expansions)
	}
	return nil, ErrNoPath
}

func reconstruct(cameFrom map[gridKey]gridKey, goal, start gridKey, toPoint func(gridKey) r2.Point) Path {
	keys := []gridKey{goal}
	for current := goal; current != start; {
		current = cameFrom[current]
		keys = append(keys, current)
	}
	path := make(Path, len(keys))
	for i, k := range keys {
		path[len(keys)-1-i] = toPoint(k)
	}
	return path
}

type openItem struct {
	key  gridKey
	f, h float64
	seq  int
}

// openSet is a min-heap on f, breaking ties toward states closer to the goal and then in
// insertion order so results are deterministic.
type openSet struct {
	items []*openItem
	next  int
}

func (s *openSet) Len() int { return len(s.items) }

func (s *openSet) Less(i, j int) bool {
	a, b := s.items[i], s.items[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.h != b.h {
		return a.h < b.h
	}
	return a.seq < b.seq
}

func (s *openSet) Swap(i, j int) { s.items[i], s.items[j] = s.items[j], s.items[i] }

func (s *openSet) Push(x any) {
	item := x.(*openItem)
	item.seq = s.next
	s.next++
	s.items = append(s.items, item)
}

func (s *openSet) Pop() any {
	old := s.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	s.items = old[:n-1]
	return item
}
