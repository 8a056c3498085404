package model

import (
	"fmt"
	"math"
)

// Supported classifier types in classifier.json
const (
	TypeLogisticRegression = "logistic_regression"
	TypeRandomForest       = "random_forest"
	TypeDecisionTree       = "decision_tree"
)

// Classifier is an opaque, deterministic and side-effect-free probability model
type Classifier interface {
	PredictProba(x []float64) []float64
	NumClasses() int
}

// ClassifierSpec is the serialized form of a fitted classifier.
// Logistic models use Coefficients/Intercepts (one row for binary problems,
// one row per class for multinomial). Tree models use Trees.
type ClassifierSpec struct {
	Type         string      `json:"type"`
	Coefficients [][]float64 `json:"coefficients,omitempty"`
	Intercepts   []float64   `json:"intercepts,omitempty"`
	Trees        []TreeSpec  `json:"trees,omitempty"`
}

// TreeSpec is one decision tree in node-array form.
// Node 0 is the root; a node with negative children is a leaf.
type TreeSpec struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is a split (x[Feature] <= Threshold goes Left) or a leaf holding class weights
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n TreeNode) isLeaf() bool {
	return n.Left < 0 && n.Right < 0
}

// NewClassifier builds a classifier and checks it against the expected input width
func NewClassifier(spec ClassifierSpec, numFeatures int) (Classifier, error) {
	switch spec.Type {
	case TypeLogisticRegression:
		return newLogisticRegression(spec, numFeatures)
	case TypeRandomForest, TypeDecisionTree:
		return newTreeEnsemble(spec, numFeatures)
	default:
		return nil, fmt.Errorf("unsupported classifier type %q", spec.Type)
	}
}

type logisticRegression struct {
	coef      [][]float64
	intercept []float64
}

func newLogisticRegression(spec ClassifierSpec, numFeatures int) (*logisticRegression, error) {
	if len(spec.Coefficients) == 0 {
		return nil, fmt.Errorf("logistic regression has no coefficients")
	}
	if len(spec.Intercepts) != len(spec.Coefficients) {
		return nil, fmt.Errorf("logistic regression has %d coefficient rows but %d intercepts",
			len(spec.Coefficients), len(spec.Intercepts))
	}
	for i, row := range spec.Coefficients {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("coefficient row %d has %d weights, expected %d", i, len(row), numFeatures)
		}
		for _, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("coefficient row %d contains a non-finite weight", i)
			}
		}
	}
	for i, b := range spec.Intercepts {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, fmt.Errorf("intercept %d is not finite", i)
		}
	}
	return &logisticRegression{coef: spec.Coefficients, intercept: spec.Intercepts}, nil
}

func (m *logisticRegression) NumClasses() int {
	if len(m.coef) == 1 {
		return 2
	}
	return len(m.coef)
}

func (m *logisticRegression) PredictProba(x []float64) []float64 {
	if len(m.coef) == 1 {
		p := sigmoid(dot(m.coef[0], x) + m.intercept[0])
		return []float64{1 - p, p}
	}

	z := make([]float64, len(m.coef))
	maxZ := math.Inf(-1)
	for k, row := range m.coef {
		z[k] = dot(row, x) + m.intercept[k]
		maxZ = math.Max(maxZ, z[k])
	}
	var sum float64
	for k := range z {
		z[k] = math.Exp(z[k] - maxZ)
		sum += z[k]
	}
	for k := range z {
		z[k] /= sum
	}
	return z
}

type treeEnsemble struct {
	trees   []TreeSpec
	classes int
}

func newTreeEnsemble(spec ClassifierSpec, numFeatures int) (*treeEnsemble, error) {
	if len(spec.Trees) == 0 {
		return nil, fmt.Errorf("%s has no trees", spec.Type)
	}
	if spec.Type == TypeDecisionTree && len(spec.Trees) != 1 {
		return nil, fmt.Errorf("decision tree must contain exactly one tree, got %d", len(spec.Trees))
	}

	classes := 0
	for t, tree := range spec.Trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d has no nodes", t)
		}
		for i, n := range tree.Nodes {
			if n.isLeaf() {
				if classes == 0 {
					classes = len(n.Value)
				}
				if len(n.Value) != classes || classes < 2 {
					return nil, fmt.Errorf("tree %d leaf %d has %d class weights, expected %d", t, i, len(n.Value), classes)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= numFeatures {
				return nil, fmt.Errorf("tree %d node %d splits on feature %d of %d", t, i, n.Feature, numFeatures)
			}
			// children always follow their parent, which rules out cycles
			if n.Left <= i || n.Right <= i || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("tree %d node %d has invalid children %d/%d", t, i, n.Left, n.Right)
			}
		}
	}
	return &treeEnsemble{trees: spec.Trees, classes: classes}, nil
}

func (m *treeEnsemble) NumClasses() int {
	return m.classes
}

func (m *treeEnsemble) PredictProba(x []float64) []float64 {
	out := make([]float64, m.classes)
	for _, tree := range m.trees {
		i := 0
		for !tree.Nodes[i].isLeaf() {
			n := tree.Nodes[i]
			if x[n.Feature] <= n.Threshold {
				i = n.Left
			} else {
				i = n.Right
			}
		}

		leaf := tree.Nodes[i].Value
		var total float64
		for _, v := range leaf {
			total += v
		}
		for k, v := range leaf {
			if total > 0 {
				out[k] += v / total
			} else {
				out[k] += 1 / float64(m.classes)
			}
		}
	}
	for k := range out {
		out[k] /= float64(len(m.trees))
	}
	return out
}

func dot(w, x []float64) float64 {
	var s float64
	for i := range w {
		s += w[i] * x[i]
	}
	return s
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
