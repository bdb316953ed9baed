package learn

import (
	"math"
	"math/rand/v2"
	"slices"
)

// FeatureNames lists the model inputs in vector order.
var FeatureNames = []string{
	"MedInc", "HouseAge", "AveRooms", "AveBedrms",
	"Population", "AveOccup", "Latitude", "Longitude",
}

// IsFeature reports whether name is one of FeatureNames.
func IsFeature(name string) bool {
	return slices.Contains(FeatureNames, name)
}

// featureDefaults fill in features missing from a prediction request.
var featureDefaults = []float64{3.0, 25.0, 5.0, 1.0, 1500.0, 3.0, 35.0, -120.0}

// Dataset is a dense regression dataset. X rows follow FeatureNames order.
type Dataset struct {
	X [][]float64
	Y []float64
}

// Len returns the number of samples.
func (d Dataset) Len() int { return len(d.Y) }

// Vectorize converts named features into a row in FeatureNames order,
// substituting defaults for missing names. Unknown names are ignored.
func Vectorize(features map[string]float64) []float64 {
	row := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		if v, ok := features[name]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			row[i] = v
		} else {
			row[i] = featureDefaults[i]
		}
	}
	return row
}

// Synthetic generates n housing-like samples deterministically from seed.
// Targets are prices in dollars with a non-linear coastal premium, so the
// non-linear backends have something to learn that the linear one cannot.
func Synthetic(n int, seed uint64) Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	d := Dataset{X: make([][]float64, n), Y: make([]float64, n)}

	for i := range n {
		medInc := 0.5 + rng.ExpFloat64()*3.0
		houseAge := 1 + rng.Float64()*51
		aveRooms := 3 + rng.Float64()*5
		aveBedrms := 0.8 + rng.Float64()*0.5
		population := 300 + rng.Float64()*3700
		aveOccup := 1.5 + rng.Float64()*3
		lat := 32.5 + rng.Float64()*9.5
		lon := -124.3 + rng.Float64()*10

		coastal := 90000 * math.Exp(-math.Pow(lon+122.0, 2)/2)
		price := 40000*medInc +
			900*houseAge +
			7000*aveRooms -
			20000*aveBedrms -
			4*population -
			6000*aveOccup -
			3000*(lat-32.5) +
			coastal +
			rng.NormFloat64()*15000
		price = max(price, 15000)

		d.X[i] = []float64{medInc, houseAge, aveRooms, aveBedrms, population, aveOccup, lat, lon}
		d.Y[i] = price
	}
	return d
}

// Split shuffles the dataset with seed and returns train and test partitions,
// the test partition holding testFrac of the samples.
func (d Dataset) Split(testFrac float64, seed uint64) (train, test Dataset) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	idx := rng.Perm(d.Len())
	nTest := int(float64(d.Len()) * testFrac)

	for i, j := range idx {
		if i < nTest {
			test.X = append(test.X, d.X[j])
			test.Y = append(test.Y, d.Y[j])
		} else {
			train.X = append(train.X, d.X[j])
			train.Y = append(train.Y, d.Y[j])
		}
	}
	return train, test
}
