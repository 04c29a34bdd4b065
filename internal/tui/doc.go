// Package tui renders a live view of one orchestration session.
//
// The view is driven by lifecycle events forwarded from an
// events.ChannelEmitter and lets the user pause, resume or cancel the
// session from the keyboard:
//
//	program := tui.NewProgram(tui.NewSessionApp(task, orch))
//	go tui.Forward(program, emitter.Events())
//	go func() {
//	    result, err := orch.ExecuteTask(ctx, task, nil)
//	    program.Send(tui.SessionDoneMsg{Result: result, Err: err})
//	}()
//	_, err := program.Run()
package tui
