// Package regime fits a Gaussian hidden Markov model over feature rows and
// maps its anonymous states onto trend / chop / risk_off labels.
package regime

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"regime-switcher/market"
)

// CovarianceType 发射分布的协方差结构。
type CovarianceType string

const (
	CovFull      CovarianceType = "full"
	CovDiag      CovarianceType = "diag"
	CovSpherical CovarianceType = "spherical"
	CovTied      CovarianceType = "tied"
)

// Valid reports whether c is a supported structure.
func (c CovarianceType) Valid() bool {
	switch c {
	case CovFull, CovDiag, CovSpherical, CovTied:
		return true
	}
	return false
}

const (
	DefaultMaxIter  = 200
	DefaultTol      = 1e-2
	DefaultMinCovar = 1e-3

	// 状态后验质量低于该值时保留上一轮参数
	minPosterior = 1e-10
	jitterTries  = 6
)

// FitConfig 拟合参数。零值字段取默认值（MaxIter/Tol/MinCovar）。
type FitConfig struct {
	NStates    int
	Covariance CovarianceType
	Seed       int64
	MaxIter    int
	Tol        float64
	MinCovar   float64
}

func (c FitConfig) withDefaults() FitConfig {
	if c.Covariance == "" {
		c.Covariance = CovFull
	}
	if c.MaxIter == 0 {
		c.MaxIter = DefaultMaxIter
	}
	if c.Tol == 0 {
		c.Tol = DefaultTol
	}
	if c.MinCovar == 0 {
		c.MinCovar = DefaultMinCovar
	}
	return c
}

func (c FitConfig) validate() error {
	switch {
	case c.NStates < 1:
		return fmt.Errorf("%w: n_states %d < 1", ErrInvalidConfig, c.NStates)
	case !c.Covariance.Valid():
		return fmt.Errorf("%w: covariance type %q", ErrInvalidConfig, c.Covariance)
	case c.MaxIter < 1:
		return fmt.Errorf("%w: max iter %d < 1", ErrInvalidConfig, c.MaxIter)
	case c.Tol < 0 || math.IsNaN(c.Tol):
		return fmt.Errorf("%w: tol %v", ErrInvalidConfig, c.Tol)
	case c.MinCovar < 0 || math.IsNaN(c.MinCovar):
		return fmt.Errorf("%w: min covar %v", ErrInvalidConfig, c.MinCovar)
	}
	return nil
}

// Model is a fitted Gaussian HMM. It is immutable; accessors return copies.
type Model struct {
	covType    CovarianceType
	dim        int
	startProb  []float64
	transMat   [][]float64
	means      [][]float64
	covars     []*mat.SymDense
	emissions  []*distmv.Normal
	logLik     float64
	iterations int
	converged  bool
}

// Fit 用 Baum-Welch 在对数空间估计 HMM 参数。行是时间，列是特征。
// 相同输入与 Seed 产生完全相同的参数。
func Fit(x mat.Matrix, cfg FitConfig) (Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Model{}, err
	}
	rows := matrixRows(x)
	need := cfg.NStates
	if need < 2 {
		need = 2
	}
	if len(rows) < need {
		return Model{}, &market.InsufficientDataError{What: "feature rows", Need: need, Got: len(rows)}
	}
	for i, row := range rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Model{}, fmt.Errorf("regime: non-finite feature at row %d", i)
			}
		}
	}

	f := newFitter(rows, cfg)
	if err := f.run(); err != nil {
		return Model{}, err
	}
	return f.model()
}

type fitter struct {
	cfg   FitConfig
	rows  [][]float64
	n     int
	dim   int
	start []float64
	trans [][]float64
	means [][]float64
	cov   []*mat.SymDense

	iterations int
	converged  bool
}

func newFitter(rows [][]float64, cfg FitConfig) *fitter {
	n, dim := cfg.NStates, len(rows[0])
	f := &fitter{cfg: cfg, rows: rows, n: n, dim: dim}

	rng := rand.New(rand.NewSource(cfg.Seed))
	f.means = kmeans(rows, n, rng)

	f.start = make([]float64, n)
	f.trans = make([][]float64, n)
	for i := range f.trans {
		f.start[i] = 1 / float64(n)
		f.trans[i] = make([]float64, n)
		for j := range f.trans[i] {
			f.trans[i][j] = 1 / float64(n)
		}
	}

	pooled := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(pooled, mat.NewDense(len(rows), dim, flatten(rows)), nil)
	f.cov = make([]*mat.SymDense, n)
	for k := range f.cov {
		f.cov[k] = f.constrain(pooled)
	}
	return f
}

// constrain 按协方差类型裁剪矩阵并加 MinCovar 对角项。
func (f *fitter) constrain(s mat.Symmetric) *mat.SymDense {
	out := mat.NewSymDense(f.dim, nil)
	switch f.cfg.Covariance {
	case CovFull, CovTied:
		out.CopySym(s)
	case CovDiag:
		for i := 0; i < f.dim; i++ {
			out.SetSym(i, i, s.At(i, i))
		}
	case CovSpherical:
		avg := 0.0
		for i := 0; i < f.dim; i++ {
			avg += s.At(i, i)
		}
		avg /= float64(f.dim)
		for i := 0; i < f.dim; i++ {
			out.SetSym(i, i, avg)
		}
	}
	for i := 0; i < f.dim; i++ {
		out.SetSym(i, i, out.At(i, i)+f.cfg.MinCovar)
	}
	return out
}

func (f *fitter) run() error {
	prev := math.Inf(-1)
	for iter := 1; iter <= f.cfg.MaxIter; iter++ {
		logB, err := emissionLogProbs(f.rows, f.means, f.cov)
		if err != nil {
			return err
		}
		logA := logMatrix(f.trans)
		logAlpha, ll := forward(logB, logA, logVector(f.start))
		logBeta := backward(logB, logA)
		f.mstep(logB, logA, logAlpha, logBeta, ll)
		f.iterations = iter

		// 收敛判定基于本轮 E 步的似然（与 M 步前参数对应）
		if iter > 1 && ll-prev < f.cfg.Tol {
			f.converged = true
			break
		}
		prev = ll
	}
	return nil
}

func (f *fitter) mstep(logB, logA, logAlpha, logBeta [][]float64, ll float64) {
	T := len(f.rows)
	gamma := make([][]float64, T)
	for t := range gamma {
		gamma[t] = make([]float64, f.n)
		for k := range gamma[t] {
			gamma[t][k] = math.Exp(logAlpha[t][k] + logBeta[t][k] - ll)
		}
	}

	xi := make([][]float64, f.n)
	for i := range xi {
		xi[i] = make([]float64, f.n)
	}
	for t := 0; t+1 < T; t++ {
		for i := 0; i < f.n; i++ {
			for j := 0; j < f.n; j++ {
				xi[i][j] += math.Exp(logAlpha[t][i] + logA[i][j] + logB[t+1][j] + logBeta[t+1][j] - ll)
			}
		}
	}

	if s := floats.Sum(gamma[0]); s > 0 {
		floats.ScaleTo(f.start, 1/s, gamma[0])
	}
	for i := range f.trans {
		if s := floats.Sum(xi[i]); s > 0 {
			floats.ScaleTo(f.trans[i], 1/s, xi[i])
		}
	}

	post := make([]float64, f.n)
	scatter := make([]*mat.SymDense, f.n)
	for k := 0; k < f.n; k++ {
		for t := range gamma {
			post[k] += gamma[t][k]
		}
		if post[k] < minPosterior {
			continue
		}
		mean := make([]float64, f.dim)
		for t, row := range f.rows {
			floats.AddScaled(mean, gamma[t][k], row)
		}
		floats.Scale(1/post[k], mean)
		f.means[k] = mean

		s := mat.NewSymDense(f.dim, nil)
		diff := make([]float64, f.dim)
		for t, row := range f.rows {
			floats.SubTo(diff, row, mean)
			s.SymRankOne(s, gamma[t][k], mat.NewVecDense(f.dim, diff))
		}
		scatter[k] = s
	}

	if f.cfg.Covariance == CovTied {
		total := mat.NewSymDense(f.dim, nil)
		for _, s := range scatter {
			if s != nil {
				total.AddSym(total, s)
			}
		}
		total.ScaleSym(1/float64(T), total)
		tied := f.constrain(total)
		for k := range f.cov {
			f.cov[k] = tied
		}
		return
	}
	for k, s := range scatter {
		if s == nil {
			continue
		}
		s.ScaleSym(1/post[k], s)
		f.cov[k] = f.constrain(s)
	}
}

func (f *fitter) model() (Model, error) {
	emissions, err := normals(f.means, f.cov)
	if err != nil {
		return Model{}, err
	}
	m := Model{
		covType:    f.cfg.Covariance,
		dim:        f.dim,
		startProb:  append([]float64(nil), f.start...),
		transMat:   copyRows(f.trans),
		means:      copyRows(f.means),
		covars:     make([]*mat.SymDense, f.n),
		emissions:  emissions,
		iterations: f.iterations,
		converged:  f.converged,
	}
	for k, c := range f.cov {
		m.covars[k] = copySym(c)
	}
	ll, err := m.Score(mat.NewDense(len(f.rows), f.dim, flatten(f.rows)))
	if err != nil {
		return Model{}, err
	}
	m.logLik = ll
	return m, nil
}

// Infer 返回 Viterbi 最可能状态路径。
func (m Model) Infer(x mat.Matrix) ([]int, error) {
	logB, err := m.logEmissions(x)
	if err != nil {
		return nil, err
	}
	if len(logB) == 0 {
		return []int{}, nil
	}
	return viterbi(logB, logMatrix(m.transMat), logVector(m.startProb)), nil
}

// Score returns the total log-likelihood of x under the model.
func (m Model) Score(x mat.Matrix) (float64, error) {
	logB, err := m.logEmissions(x)
	if err != nil {
		return 0, err
	}
	if len(logB) == 0 {
		return 0, nil
	}
	_, ll := forward(logB, logMatrix(m.transMat), logVector(m.startProb))
	return ll, nil
}

// Posteriors returns P(state = k | x) for every row.
func (m Model) Posteriors(x mat.Matrix) (*mat.Dense, error) {
	logB, err := m.logEmissions(x)
	if err != nil {
		return nil, err
	}
	if len(logB) == 0 {
		return nil, &market.InsufficientDataError{What: "feature rows", Need: 1, Got: 0}
	}
	logA := logMatrix(m.transMat)
	logAlpha, ll := forward(logB, logA, logVector(m.startProb))
	logBeta := backward(logB, logA)
	out := mat.NewDense(len(logB), len(m.startProb), nil)
	for t := range logB {
		for k := range logB[t] {
			out.Set(t, k, math.Exp(logAlpha[t][k]+logBeta[t][k]-ll))
		}
	}
	return out, nil
}

func (m Model) logEmissions(x mat.Matrix) ([][]float64, error) {
	if len(m.emissions) == 0 {
		return nil, fmt.Errorf("%w: model is not fitted", ErrInvalidConfig)
	}
	r, c := x.Dims()
	if c != m.dim {
		return nil, fmt.Errorf("%w: got %d columns, model has %d", ErrDimensionMismatch, c, m.dim)
	}
	out := make([][]float64, r)
	row := make([]float64, c)
	for t := 0; t < r; t++ {
		mat.Row(row, t, x)
		out[t] = make([]float64, len(m.emissions))
		for k, e := range m.emissions {
			out[t][k] = e.LogProb(row)
		}
	}
	return out, nil
}

func (m Model) NStates() int                   { return len(m.startProb) }
func (m Model) Dim() int                       { return m.dim }
func (m Model) CovarianceType() CovarianceType { return m.covType }
func (m Model) LogLikelihood() float64         { return m.logLik }
func (m Model) Iterations() int                { return m.iterations }
func (m Model) Converged() bool                { return m.converged }
func (m Model) StartProb() []float64           { return append([]float64(nil), m.startProb...) }
func (m Model) TransMat() [][]float64          { return copyRows(m.transMat) }
func (m Model) Means() [][]float64             { return copyRows(m.means) }

// Covariances 返回每个状态的完整协方差矩阵副本（diag/spherical 也展开成矩阵）。
func (m Model) Covariances() []*mat.SymDense {
	out := make([]*mat.SymDense, len(m.covars))
	for k, c := range m.covars {
		out[k] = copySym(c)
	}
	return out
}

func emissionLogProbs(rows, means [][]float64, cov []*mat.SymDense) ([][]float64, error) {
	dists, err := normals(means, cov)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for t, row := range rows {
		out[t] = make([]float64, len(dists))
		for k, d := range dists {
			out[t][k] = d.LogProb(row)
		}
	}
	return out, nil
}

// normals 构建发射分布；非正定矩阵逐级加对角抖动后重试。
func normals(means [][]float64, cov []*mat.SymDense) ([]*distmv.Normal, error) {
	out := make([]*distmv.Normal, len(means))
	for k := range means {
		sigma := copySym(cov[k])
		jitter := DefaultMinCovar
		for try := 0; ; try++ {
			if d, ok := distmv.NewNormal(means[k], sigma, nil); ok {
				out[k] = d
				break
			}
			if try == jitterTries {
				return nil, fmt.Errorf("%w: state %d", ErrDegenerateCovariance, k)
			}
			n := sigma.SymmetricDim()
			for i := 0; i < n; i++ {
				sigma.SetSym(i, i, sigma.At(i, i)+jitter)
			}
			jitter *= 10
		}
	}
	return out, nil
}

func forward(logB, logA [][]float64, logPi []float64) ([][]float64, float64) {
	T, n := len(logB), len(logPi)
	alpha := make([][]float64, T)
	alpha[0] = make([]float64, n)
	for k := range logPi {
		alpha[0][k] = logPi[k] + logB[0][k]
	}
	buf := make([]float64, n)
	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, n)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				buf[i] = alpha[t-1][i] + logA[i][j]
			}
			alpha[t][j] = floats.LogSumExp(buf) + logB[t][j]
		}
	}
	return alpha, floats.LogSumExp(alpha[T-1])
}

func backward(logB, logA [][]float64) [][]float64 {
	T, n := len(logB), len(logA)
	beta := make([][]float64, T)
	beta[T-1] = make([]float64, n)
	buf := make([]float64, n)
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				buf[j] = logA[i][j] + logB[t+1][j] + beta[t+1][j]
			}
			beta[t][i] = floats.LogSumExp(buf)
		}
	}
	return beta
}

func logVector(p []float64) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = math.Log(v)
	}
	return out
}

func logMatrix(p [][]float64) [][]float64 {
	out := make([][]float64, len(p))
	for i := range p {
		out[i] = logVector(p[i])
	}
	return out
}

func matrixRows(x mat.Matrix) [][]float64 {
	r, _ := x.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	return rows
}

func flatten(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func copyRows(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for i := range in {
		out[i] = append([]float64(nil), in[i]...)
	}
	return out
}

func copySym(s *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.CopySym(s)
	return out
}
