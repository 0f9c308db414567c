// Package types defines the data model shared by every Sonoscope package.
//
// These types are the lingua franca between frame sources, vision
// processors, mappers, generators, outputs and the processor core. Each
// package keeps its own internal types; only data that crosses package
// boundaries lives here, which keeps the import graph acyclic.
package types
