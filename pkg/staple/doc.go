// Package staple estimates a consensus labelling together with a confusion
// matrix per observer using expectation maximisation (STAPLE).
//
// Estimator handles any number of classes. BinaryEstimator is the original
// two-class formulation that tracks sensitivity and specificity only.
//
// Both run the E-step in parallel over contiguous pixel chunks. Each worker
// owns its accumulators, which are merged in worker order, so results do not
// depend on scheduling.
package staple
