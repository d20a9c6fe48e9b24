package terminal

import (
	"fmt"
	"text/tabwriter"
)

// Action maps an IDE debugger action to the terminal command it runs.
type Action struct {
	ID      string
	Title   string
	Command string
}

// Actions is the startup table of IDE actions understood by the terminal.
var Actions = []Action{
	{ID: "debug", Title: "Debug", Command: "attach"},
	{ID: "disconnectDebug", Title: "Disconnect", Command: "detach"},
	{ID: "stepInto", Title: "Step Into", Command: "step"},
	{ID: "stepOver", Title: "Step Over", Command: "next"},
	{ID: "stepOut", Title: "Step Out", Command: "stepout"},
	{ID: "resumeExecution", Title: "Resume", Command: "continue"},
	{ID: "suspendExecution", Title: "Suspend", Command: "halt"},
	{ID: "evaluateExpression", Title: "Evaluate Expression", Command: "print"},
	{ID: "changeVariableValue", Title: "Change Variable Value", Command: "set"},
	{ID: "jumpInto", Title: "Run to Cursor", Command: "runto"},
	{ID: "deleteAllBreakpoints", Title: "Delete All Breakpoints", Command: "clearall"},
	{ID: "editDebugConfigurations", Title: "Edit Debug Configurations", Command: "configs"},
}

func (c *Commands) action(id string) *Action {
	for i := range c.actions {
		if c.actions[i].ID == id {
			return &c.actions[i]
		}
	}
	return nil
}

func (c *Commands) listActions(t *Term, args string) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, a := range c.actions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Title, a.Command)
	}
	return w.Flush()
}
