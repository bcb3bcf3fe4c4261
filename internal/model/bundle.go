// Package model holds pre-trained per-ticker classifiers and the feature
// pipeline that feeds them.
package model

import (
	"errors"
	"fmt"
	"math"
)

// Bundle is a trained polynomial-features → standard-scaler → linear
// classifier pipeline for one ticker.
type Bundle struct {
	Features    []string
	Degree      int
	IncludeBias bool
	Mean        []float64
	Scale       []float64
	Classes     []string
	Coef        [][]float64
	Intercept   []float64
}

// Validate checks that the pipeline dimensions line up.
func (b *Bundle) Validate() error {
	if len(b.Features) == 0 {
		return errors.New("bundle has no features")
	}
	if b.Degree < 1 {
		return fmt.Errorf("invalid polynomial degree %d", b.Degree)
	}
	width := len(b.expand(make([]float64, len(b.Features))))
	if len(b.Mean) != width || len(b.Scale) != width {
		return fmt.Errorf("scaler width %d/%d, want %d", len(b.Mean), len(b.Scale), width)
	}
	if len(b.Coef) == 0 || len(b.Coef) != len(b.Intercept) {
		return fmt.Errorf("classifier has %d coef rows and %d intercepts", len(b.Coef), len(b.Intercept))
	}
	for i, row := range b.Coef {
		if len(row) != width {
			return fmt.Errorf("coef row %d width %d, want %d", i, len(row), width)
		}
	}
	switch {
	case len(b.Coef) == 1 && len(b.Classes) != 2:
		return fmt.Errorf("binary classifier needs 2 classes, got %d", len(b.Classes))
	case len(b.Coef) > 1 && len(b.Classes) != len(b.Coef):
		return fmt.Errorf("%d classes for %d coef rows", len(b.Classes), len(b.Coef))
	}
	return nil
}

// Predict selects the bundle's features from values (by name), runs the
// pipeline, and returns the predicted class label.
func (b *Bundle) Predict(values map[string]float64) (string, error) {
	row := make([]float64, len(b.Features))
	for i, name := range b.Features {
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("missing feature %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("feature %q is not finite", name)
		}
		row[i] = v
	}

	x := b.expand(row)
	for i := range x {
		s := b.Scale[i]
		if s == 0 {
			s = 1
		}
		x[i] = (x[i] - b.Mean[i]) / s
	}

	if len(b.Coef) == 1 {
		p := sigmoid(dot(b.Coef[0], x) + b.Intercept[0])
		if p > 0.5 {
			return b.Classes[1], nil
		}
		return b.Classes[0], nil
	}

	best, bestScore := 0, math.Inf(-1)
	for k, w := range b.Coef {
		if s := dot(w, x) + b.Intercept[k]; s > bestScore {
			best, bestScore = k, s
		}
	}
	return b.Classes[best], nil
}

// expand produces polynomial terms in the conventional order: optional bias,
// then for each degree the combinations with replacement of feature indices
// in lexicographic order.
func (b *Bundle) expand(row []float64) []float64 {
	out := make([]float64, 0, 1+len(row)*b.Degree)
	if b.IncludeBias {
		out = append(out, 1)
	}
	for d := 1; d <= b.Degree; d++ {
		idx := make([]int, d)
		for {
			prod := 1.0
			for _, j := range idx {
				prod *= row[j]
			}
			out = append(out, prod)
			if !nextCombination(idx, len(row)) {
				break
			}
		}
	}
	return out
}

// nextCombination advances idx to the next non-decreasing index tuple over
// n values. It returns false after the last tuple.
func nextCombination(idx []int, n int) bool {
	i := len(idx) - 1
	for i >= 0 && idx[i] == n-1 {
		i--
	}
	if i < 0 {
		return false
	}
	idx[i]++
	for j := i + 1; j < len(idx); j++ {
		idx[j] = idx[i]
	}
	return true
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
