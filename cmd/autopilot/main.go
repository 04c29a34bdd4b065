// Command autopilot plans a development task, executes the subtasks and
// verifies every result, correcting failures automatically.
package main

func main() {
	Execute()
}
