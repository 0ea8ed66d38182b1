package risk

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/medprompt/backend/pkg/logger"
)

type Dataset struct {
	X [][]float64
	Y []float64
}

func (d *Dataset) Len() int { return len(d.Y) }

// ReadDataset parses a CSV with a header containing every feature column and
// the Outcome column, in any order. Extra columns are ignored.
func ReadDataset(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	cols := make([]int, len(FeatureOrder))
	for i, name := range FeatureOrder {
		c, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("dataset is missing column %q", name)
		}
		cols[i] = c
	}
	outcomeCol, ok := index[OutcomeColumn]
	if !ok {
		return nil, fmt.Errorf("dataset is missing column %q", OutcomeColumn)
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		x := make([]float64, len(cols))
		for i, c := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, FeatureOrder[i], err)
			}
			x[i] = v
		}

		y, err := strconv.ParseFloat(strings.TrimSpace(record[outcomeCol]), 64)
		if err != nil || (y != 0 && y != 1) {
			return nil, fmt.Errorf("line %d: outcome must be 0 or 1, got %q", line, record[outcomeCol])
		}

		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, y)
	}

	if ds.Len() == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return ds, nil
}

type TrainOptions struct {
	TestSize float64
	Seed     int64
	// Iterations caps the L-BFGS major iterations.
	Iterations int
	// C is the inverse L2 regularisation strength.
	C float64
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{TestSize: 0.2, Seed: 42, Iterations: 1000, C: 1.0}
}

// Split shuffles with a fixed seed and holds out ceil(testSize*n) rows.
func (d *Dataset) Split(testSize float64, seed int64) (train, test *Dataset) {
	n := d.Len()
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}

	train, test = &Dataset{}, &Dataset{}
	for i, p := range perm {
		dst := train
		if i < nTest {
			dst = test
		}
		dst.X = append(dst.X, d.X[p])
		dst.Y = append(dst.Y, d.Y[p])
	}
	return train, test
}

// FitScaler computes per-feature mean and population standard deviation.
// Constant features get a scale of 1.
func FitScaler(X [][]float64) Scaler {
	n := len(FeatureOrder)
	mean := make([]float64, n)
	scale := make([]float64, n)

	col := make([]float64, len(X))
	for j := 0; j < n; j++ {
		for i, row := range X {
			col[i] = row[j]
		}

		mean[j] = stat.Mean(col, nil)
		scale[j] = math.Sqrt(stat.MomentAbout(2, col, mean[j], nil))
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}

	return Scaler{Mean: mean, Scale: scale}
}

// FitLogistic minimises 0.5*||w||^2 + C*sum(log-loss) with L-BFGS. The
// intercept is the last optimisation variable and is not penalised.
func FitLogistic(X [][]float64, y []float64, opts TrainOptions) (Classifier, error) {
	dim := len(X[0])

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return logisticObjective(X, y, opts.C, x, nil)
		},
		Grad: func(grad, x []float64) {
			logisticObjective(X, y, opts.C, x, grad)
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: gradientTolerance,
		MajorIterations:   opts.Iterations,
	}

	result, err := optimize.Minimize(problem, make([]float64, dim+1), settings, &optimize.LBFGS{})
	if result == nil {
		return Classifier{}, fmt.Errorf("failed to fit logistic regression: %w", err)
	}
	if err != nil {
		logger.Warn("Logistic regression stopped early",
			zap.String("status", result.Status.String()),
			zap.Error(err),
		)
	}

	coef := make([]float64, dim)
	copy(coef, result.X[:dim])
	return Classifier{Coef: coef, Intercept: result.X[dim]}, nil
}

const gradientTolerance = 1e-8

// logisticObjective returns the penalised loss at x = [w..., b] and, when
// grad is non-nil, writes its gradient there.
func logisticObjective(X [][]float64, y []float64, c float64, x, grad []float64) float64 {
	dim := len(x) - 1
	w, b := x[:dim], x[dim]

	loss := 0.5 * floats.Dot(w, w)
	if grad != nil {
		copy(grad[:dim], w)
		grad[dim] = 0
	}

	for i, row := range X {
		z := b + floats.Dot(w, row)
		loss += c * (softplus(z) - y[i]*z)
		if grad != nil {
			diff := c * (sigmoid(z) - y[i])
			floats.AddScaled(grad[:dim], diff, row)
			grad[dim] += diff
		}
	}
	return loss
}

// softplus is log(1+e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func Train(ds *Dataset, opts TrainOptions) (*Model, error) {
	if ds.Len() < 2 {
		return nil, fmt.Errorf("need at least 2 rows to train, got %d", ds.Len())
	}
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		return nil, fmt.Errorf("invalid test size %v", opts.TestSize)
	}
	if opts.Iterations <= 0 || opts.C <= 0 {
		return nil, fmt.Errorf("invalid training options: %+v", opts)
	}

	train, test := ds.Split(opts.TestSize, opts.Seed)

	scaler := FitScaler(train.X)
	scaled := make([][]float64, train.Len())
	for i, row := range train.X {
		scaled[i] = scaler.Transform(row)
	}
	clf, err := FitLogistic(scaled, train.Y, opts)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Features:   append([]string(nil), FeatureOrder...),
		Scaler:     scaler,
		Classifier: clf,
		TrainedAt:  time.Now().UTC(),
		TrainRows:  train.Len(),
		TestRows:   test.Len(),
	}
	m.Accuracy = accuracy(m, test)

	return m, nil
}

func accuracy(m *Model, ds *Dataset) float64 {
	if ds.Len() == 0 {
		return 0
	}
	correct := 0
	for i, row := range ds.X {
		predicted := 0.0
		if m.Probability(featuresFromVector(row)) >= 0.5 {
			predicted = 1
		}
		if predicted == ds.Y[i] {
			correct++
		}
	}
	return float64(correct) / float64(ds.Len())
}

type ProvisionOptions struct {
	ModelPath   string
	DatasetPath string
	Force       bool
	Train       TrainOptions
}

// EnsureTrained loads the artifact at ModelPath, training and saving it from
// DatasetPath first only if it does not exist (or Force is set). The boolean
// reports whether training ran.
func EnsureTrained(opts ProvisionOptions) (*Model, bool, error) {
	if !opts.Force {
		if _, err := os.Stat(opts.ModelPath); err == nil {
			m, err := Load(opts.ModelPath)
			return m, false, err
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("failed to stat model artifact: %w", err)
		}
	}

	logger.Info("Training risk model",
		zap.String("dataset", opts.DatasetPath),
		zap.String("artifact", opts.ModelPath),
	)

	f, err := os.Open(opts.DatasetPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadDataset(f)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read dataset: %w", err)
	}

	m, err := Train(ds, opts.Train)
	if err != nil {
		return nil, false, fmt.Errorf("failed to train model: %w", err)
	}

	if err := Save(opts.ModelPath, m); err != nil {
		return nil, false, err
	}

	logger.Info("Risk model trained",
		zap.Int("train_rows", m.TrainRows),
		zap.Int("test_rows", m.TestRows),
		zap.Float64("test_accuracy", m.Accuracy),
	)

	return m, true, nil
}
