package learn

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit variance.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes population column statistics over rows. Constant
// columns get a unit std so Transform never divides by zero.
func FitScaler(rows [][]float64) Scaler {
	if len(rows) == 0 {
		return Scaler{}
	}
	cols := len(rows[0])
	s := Scaler{Mean: make([]float64, cols), Std: make([]float64, cols)}
	col := make([]float64, len(rows))
	for j := range cols {
		for i, r := range rows {
			col[i] = r[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Std[j] = math.Sqrt(variance)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return s
}

// Transform returns a standardized copy of row.
func (s Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TransformAll standardizes every row.
func (s Scaler) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = s.Transform(r)
	}
	return out
}

// fitTarget fits a single-column scaler to ys.
func fitTarget(ys []float64) Scaler {
	rows := make([][]float64, len(ys))
	for i, y := range ys {
		rows[i] = []float64{y}
	}
	return FitScaler(rows)
}

func (s Scaler) scale(y float64) float64   { return (y - s.Mean[0]) / s.Std[0] }
func (s Scaler) unscale(y float64) float64 { return y*s.Std[0] + s.Mean[0] }
