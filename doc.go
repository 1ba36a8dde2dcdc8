// Package coursekit compiles interactive course content from an extended
// markdown dialect into the JSON artifacts consumed by the course runtime.
//
// A course is a directory of markdown, YAML and asset files. The compiler
// splits content.md into steps, renders each step through a pipeline of
// source rewrites, markdown rendering, equation substitution and HTML tree
// passes, and assembles the results into a single Course value per locale,
// together with bundled glossary, biography and hint data.
package coursekit
