// Package solar predicts daily surface irradiance for a coordinate from its
// historical record. A bagged ensemble of regression trees is trained per
// coordinate on (year, month, day-of-year) features, persisted, and reused on
// later requests.
package solar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
)

// TrainConfig holds the ensemble hyperparameters.
type TrainConfig struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     uint64
	// Workers bounds how many trees are grown concurrently.
	Workers int
}

// DefaultTrainConfig returns 200 trees of depth 10 seeded with 42.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Trees: 200, MaxDepth: 10, MinLeaf: 1, Seed: 42, Workers: 4}
}

func (c TrainConfig) normalized() TrainConfig {
	if c.Trees <= 0 {
		c.Trees = 200
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 10
	}
	if c.MinLeaf <= 0 {
		c.MinLeaf = 1
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Node is one node of a regression tree stored in a flat slice. Leaves have
// Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a binary regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for one feature vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of regression trees.
type Forest struct {
	Features int
	Trees    []Tree
}

// Predict returns the mean prediction across all trees.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != f.Features {
		return 0, fmt.Errorf("solar: expected %d features, got %d", f.Features, len(x))
	}
	if len(f.Trees) == 0 {
		return 0, errors.New("solar: forest has no trees")
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// Train fits a forest to X (rows of features) and y. Each tree draws a
// bootstrap sample from its own generator seeded with (Seed, tree index), so
// the result does not depend on scheduling.
func Train(ctx context.Context, X [][]float64, y []float64, cfg TrainConfig) (*Forest, error) {
	if len(X) == 0 {
		return nil, errors.New("solar: no training samples")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("solar: %d feature rows but %d targets", len(X), len(y))
	}
	features := len(X[0])
	for i, row := range X {
		if len(row) != features {
			return nil, fmt.Errorf("solar: row %d has %d features, want %d", i, len(row), features)
		}
	}
	cfg = cfg.normalized()

	forest := &Forest{Features: features, Trees: make([]Tree, cfg.Trees)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for t := 0; t < cfg.Trees; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(t)))
			sample := make([]int, len(X))
			for i := range sample {
				sample[i] = rng.IntN(len(X))
			}
			b := &treeBuilder{X: X, y: y, cfg: cfg, features: features}
			b.grow(sample, 0)
			forest.Trees[t] = Tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return forest, nil
}

type treeBuilder struct {
	X        [][]float64
	y        []float64
	cfg      TrainConfig
	features int
	nodes    []Node
}

// grow adds the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.mean(idx)})

	if depth >= b.cfg.MaxDepth || len(idx) < 2*b.cfg.MinLeaf {
		return self
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

func (b *treeBuilder) mean(idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

// bestSplit finds the feature and midpoint threshold minimizing the summed
// squared error of the two children.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return 0, 0, false
	}

	bestSSE := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0
	order := make([]int, n)

	for f := 0; f < b.features; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			v := b.y[order[k]]
			leftSum += v
			leftSq += v * v

			cur, next := b.X[order[k]][f], b.X[order[k+1]][f]
			if cur == next {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < b.cfg.MinLeaf || nr < b.cfg.MinLeaf {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}
	if bestFeature < 0 || bestSSE >= parentSSE {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}
