// Package main provides the vidstab command-line stabilizer.
//
// The executable reads a shaky video, estimates and smooths the camera path
// and writes a stabilized copy. Options can come from a JSON file given with
// -config; flags set on the command line override values from the file.
package main
