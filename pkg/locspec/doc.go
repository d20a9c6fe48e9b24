// Package locspec implements code to parse a string into a specific
// location specification.
//
// Location spec examples:
//
//	locStr ::= <filename>:<line> | <line> | +<offset> | -<offset>
//
//	<filename>:<line>   line in the given file
//	<line>              line in the file of the current stop
//	+<offset>           lines after the current stop
//	-<offset>           lines before the current stop
package locspec
