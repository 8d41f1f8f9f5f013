package regime

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

const (
	kmeansRestarts = 10
	kmeansMaxIter  = 300
)

// kmeans 用 k-means++ 初始化的 Lloyd 迭代求 k 个中心，重复 kmeansRestarts 次取
// 惯性最小的一组。所有随机性来自 rng，因此同一种子结果可复现。
func kmeans(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	var best [][]float64
	bestInertia := math.Inf(1)
	for r := 0; r < kmeansRestarts; r++ {
		centers := kmeansPlusPlus(rows, k, rng)
		inertia := lloyd(rows, centers)
		if inertia < bestInertia {
			bestInertia = inertia
			best = centers
		}
	}
	return best
}

func kmeansPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	first := rows[rng.Intn(len(rows))]
	centers = append(centers, append([]float64(nil), first...))

	dist := make([]float64, len(rows))
	for i, row := range rows {
		dist[i] = sqDist(row, first)
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		idx := 0
		if total <= 0 {
			idx = rng.Intn(len(rows))
		} else {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc >= target {
					idx = i
					break
				}
			}
		}
		c := append([]float64(nil), rows[idx]...)
		centers = append(centers, c)
		for i, row := range rows {
			if d := sqDist(row, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// lloyd refines centers in place and returns the final inertia.
func lloyd(rows [][]float64, centers [][]float64) float64 {
	k := len(centers)
	dim := len(rows[0])
	assign := make([]int, len(rows))
	for i := range assign {
		assign[i] = -1
	}
	inertia := 0.0
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		inertia = 0
		for i, row := range rows {
			c, d := nearest(row, centers)
			inertia += d
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, row := range rows {
			floats.Add(sums[assign[i]], row)
			counts[assign[i]]++
		}
		for c := range centers {
			if counts[c] == 0 {
				// 空簇：移到离当前中心最远的点
				far := farthest(rows, assign, centers)
				copy(centers[c], rows[far])
				assign[far] = c
				continue
			}
			floats.ScaleTo(centers[c], 1/float64(counts[c]), sums[c])
		}
	}
	return inertia
}

func nearest(row []float64, centers [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(row, center); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

func farthest(rows [][]float64, assign []int, centers [][]float64) int {
	idx, maxD := 0, -1.0
	for i, row := range rows {
		if d := sqDist(row, centers[assign[i]]); d > maxD {
			idx, maxD = i, d
		}
	}
	return idx
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
