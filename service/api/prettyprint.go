package api

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// values longer than this cause containers to be printed on multiple
	// lines when newlines is enabled
	maxShortStringLen = 7
	// string used for one indentation level (when printing on multiple lines)
	indentString = "\t"
)

// SinglelineString returns a representation of v on a single line.
func (v *Variable) SinglelineString() string {
	var buf bytes.Buffer
	v.writeTo(&buf, false, "")
	return buf.String()
}

// MultilineString returns a representation of v on multiple lines.
func (v *Variable) MultilineString(indent string) string {
	var buf bytes.Buffer
	v.writeTo(&buf, true, indent)
	return buf.String()
}

func (v *Variable) writeTo(buf io.Writer, newlines bool, indent string) {
	if len(v.Children) == 0 {
		fmt.Fprint(buf, v.Value)
		return
	}
	lbrack, rbrack := "[", "]"
	keyed := v.Kind == "dict"
	if keyed {
		lbrack, rbrack = "{", "}"
	}
	newlines = newlines && v.shouldBreak()
	fmt.Fprint(buf, lbrack)
	for i := range v.Children {
		c := &v.Children[i]
		if newlines {
			fmt.Fprintf(buf, "\n%s%s", indent, indentString)
		}
		if keyed {
			fmt.Fprintf(buf, "%s: ", c.Name)
		}
		c.writeTo(buf, newlines, indent+indentString)
		if i != len(v.Children)-1 || newlines {
			fmt.Fprint(buf, ",")
			if !newlines {
				fmt.Fprint(buf, " ")
			}
		}
	}
	if newlines {
		fmt.Fprintf(buf, "\n%s", indent)
	}
	fmt.Fprint(buf, rbrack)
}

func (v *Variable) shouldBreak() bool {
	for i := range v.Children {
		c := &v.Children[i]
		if len(c.Children) > 0 || len(c.Value) > maxShortStringLen {
			return true
		}
	}
	return false
}
