package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	sessionCmds
	breakCmds
	runCmds
	dataCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Connecting to the debuggee", sessionCmds},
	{"Running the program", runCmds},
	{"Manipulating breakpoints", breakCmds},
	{"Viewing program variables", dataCmds},
	{"Other commands", otherCmds},
}
