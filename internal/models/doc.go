// Package models defines the data shared by the label fusion packages: grids of
// labels and probabilities, masks, the pixel domain a run operates on, and
// per-observer confusion matrices.
package models
