package tune

import (
	"github.com/open-access-policies/policy-crew/internal/retrieve"
)

// StructuralParams are the Phase A search dimensions: retrieval shape
// and chunking.
type StructuralParams struct {
	K            int     `json:"k"`
	ChunkSize    int     `json:"chunk_size"`
	ChunkOverlap int     `json:"chunk_overlap"`
	Strategy     string  `json:"strategy"`
	MMRLambda    float64 `json:"mmr_lambda"`
}

// GateParams are the Phase B search dimensions: the acceptance
// thresholds.
type GateParams struct {
	Tau        float64 `json:"tau"`
	Delta      float64 `json:"delta"`
	Ratio      float64 `json:"ratio"`
	MinOverlap float64 `json:"min_overlap"`
	KeepWithin float64 `json:"keep_within"`
}

// Phase A grid values.
var (
	gridK            = []int{10, 15, 20, 30}
	gridChunkSize    = []int{800, 1000, 1200, 1600}
	gridChunkOverlap = []int{100, 200, 300}
	gridStrategy     = []string{retrieve.StrategySimilarity, retrieve.StrategyMMR}
	gridMMRLambda    = []float64{0.3, 0.5, 0.7}
)

// Phase B grid values.
var (
	gridTau        = []float64{0.15, 0.20, 0.25, 0.30, 0.35, 0.40, 0.45, 0.50}
	gridDelta      = []float64{0.00, 0.05, 0.10, 0.12}
	gridRatio      = []float64{1.00, 1.15, 1.25, 1.35}
	gridMinOverlap = []float64{0.00, 0.10, 0.15, 0.20}
	gridKeepWithin = []float64{0.01, 0.02, 0.03}
)

// fallbackGateParams keep Phase B alive when stride sampling would
// leave it with zero trials.
var fallbackGateParams = []GateParams{
	{Tau: 0.25, Delta: 0.05, Ratio: 1.15, MinOverlap: 0.10, KeepWithin: 0.02},
	{Tau: 0.30, Delta: 0.05, Ratio: 1.15, MinOverlap: 0.10, KeepWithin: 0.02},
	{Tau: 0.35, Delta: 0.10, Ratio: 1.25, MinOverlap: 0.15, KeepWithin: 0.02},
}

// StructuralGrid enumerates the full Phase A Cartesian product in a
// fixed nesting order, innermost dimension varying fastest.
func StructuralGrid() []StructuralParams {
	grid := make([]StructuralParams, 0,
		len(gridK)*len(gridChunkSize)*len(gridChunkOverlap)*len(gridStrategy)*len(gridMMRLambda))
	for _, k := range gridK {
		for _, size := range gridChunkSize {
			for _, overlap := range gridChunkOverlap {
				for _, strategy := range gridStrategy {
					for _, lambda := range gridMMRLambda {
						grid = append(grid, StructuralParams{
							K:            k,
							ChunkSize:    size,
							ChunkOverlap: overlap,
							Strategy:     strategy,
							MMRLambda:    lambda,
						})
					}
				}
			}
		}
	}
	return grid
}

// GateGrid enumerates the full Phase B Cartesian product.
func GateGrid() []GateParams {
	grid := make([]GateParams, 0,
		len(gridTau)*len(gridDelta)*len(gridRatio)*len(gridMinOverlap)*len(gridKeepWithin))
	for _, tau := range gridTau {
		for _, delta := range gridDelta {
			for _, ratio := range gridRatio {
				for _, overlap := range gridMinOverlap {
					for _, keep := range gridKeepWithin {
						grid = append(grid, GateParams{
							Tau:        tau,
							Delta:      delta,
							Ratio:      ratio,
							MinOverlap: overlap,
							KeepWithin: keep,
						})
					}
				}
			}
		}
	}
	return grid
}

// SampleByStride down-samples a grid to at most maxTrials entries by
// fixed-stride slicing: stride = ceil(n/maxTrials), keeping indices 0,
// stride, 2*stride and so on. The same grid and budget always select
// the same entries. A grid already within budget passes through
// unchanged.
func SampleByStride[T any](grid []T, maxTrials int) []T {
	if maxTrials <= 0 {
		return nil
	}
	if len(grid) <= maxTrials {
		return grid
	}
	stride := (len(grid) + maxTrials - 1) / maxTrials
	sampled := make([]T, 0, maxTrials)
	for i := 0; i < len(grid); i += stride {
		sampled = append(sampled, grid[i])
	}
	return sampled
}
