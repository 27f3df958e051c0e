package forecast

import (
	"math"
	"sort"
)

// treeNode is one node of a regression tree. Leaves carry a prediction,
// internal nodes a split on feature <= threshold.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"value"`
	Leaf      bool      `json:"leaf"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

// regressionTree is a CART-style tree fit on squared error. Splits are
// exact: every midpoint between consecutive distinct feature values is a
// candidate.
type regressionTree struct {
	Root *treeNode `json:"root"`
}

type treeParams struct {
	maxDepth int
	minLeaf  int
	features []int // candidate feature indices, already subsampled
}

func fitTree(x [][]float64, y []float64, rows []int, p treeParams) *regressionTree {
	return &regressionTree{Root: growNode(x, y, rows, p, 0)}
}

func growNode(x [][]float64, y []float64, rows []int, p treeParams, depth int) *treeNode {
	mean := meanAt(y, rows)
	if depth >= p.maxDepth || len(rows) < 2*p.minLeaf {
		return &treeNode{Leaf: true, Value: mean}
	}

	feature, threshold, ok := bestSplit(x, y, rows, p)
	if !ok {
		return &treeNode{Leaf: true, Value: mean}
	}

	left := rows[:0:0]
	right := rows[:0:0]
	for _, i := range rows {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < p.minLeaf || len(right) < p.minLeaf {
		return &treeNode{Leaf: true, Value: mean}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growNode(x, y, left, p, depth+1),
		Right:     growNode(x, y, right, p, depth+1),
	}
}

// bestSplit scans the candidate features for the threshold that minimizes
// the summed squared error of the two children. It sorts row indices per
// feature and sweeps with running sums, so each feature costs O(n log n).
func bestSplit(x [][]float64, y []float64, rows []int, p treeParams) (int, float64, bool) {
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	total := 0.0
	totalSq := 0.0
	for _, i := range rows {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	n := float64(len(rows))
	parentSSE := totalSq - total*total/n

	order := make([]int, len(rows))
	for _, f := range p.features {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		leftSum := 0.0
		leftSq := 0.0
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			leftSum += y[i]
			leftSq += y[i] * y[i]

			cur, next := x[i][f], x[order[k+1]][f]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			if int(nl) < p.minLeaf || int(nr) < p.minLeaf {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := parentSSE - sse
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}

	if bestFeature < 0 || bestGain <= 1e-12 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (t *regressionTree) predict(row []float64) float64 {
	node := t.Root
	for node != nil && !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		return math.NaN()
	}
	return node.Value
}

func meanAt(y []float64, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range rows {
		sum += y[i]
	}
	return sum / float64(len(rows))
}
