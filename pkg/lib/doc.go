// Package lib provides a Go SDK for running scripts securely from Go programs.
//
// This package allows applications to submit scripts, stream their output and
// read the execution history without shelling out to the scriptrun CLI binary.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Run(ctx, lib.SubmitOpts{
//	    Script: lib.Script{
//	        Name:       "greeting",
//	        Content:    `Write-Output "Hello, $env:SCRIPTRUN_PARAM_Name!"`,
//	        Parameters: []lib.Parameter{{Name: "Name", Type: lib.ParameterTypeString, Required: true}},
//	    },
//	    Values: map[string]any{"Name": "Ada"},
//	}, &lib.RunOpts{Stdout: os.Stdout, Stderr: os.Stderr})
//
// # Parameters
//
// Parameter values are coerced to their declared type and passed to the
// script as SCRIPTRUN_PARAM_<name> environment variables, they never become part
// of the script text.
//
// # Trust
//
// Restricted scripts are checked against the content policy before running,
// privileged ones bypass it. The trust level is taken from [SubmitOpts].Trust,
// or resolved from [SubmitOpts].Role with [Config].RoleTrust. Unknown roles
// are always restricted.
//
// # Live Output
//
// Use [Client.Subscribe] to follow an execution submitted with [Client.Submit]:
//
//	id, _ := client.Submit(ctx, opts)
//	sub, _ := client.Subscribe(ctx, id)
//	defer sub.Close()
//	for ev := range sub.Events() {
//	    if ev.Line != nil {
//	        fmt.Println(ev.Line.Text)
//	    }
//	}
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Execution does not exist.
//   - [ErrNotValid]: Invalid script, timeout or configuration.
//   - [ErrRejected]: The policy rejected the script.
//   - [ErrBinding]: Parameter values could not be bound.
//   - [ErrBusy]: Too many executions in flight.
//   - [ErrStillRunning]: The result is not available yet.
//
// # Testing
//
// Use [EngineFake] and a temporary database path to write tests without a
// script interpreter:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    DBPath: filepath.Join(t.TempDir(), "test.db"),
//	    Engine: lib.EngineFake,
//	    Fake:   lib.FakeConfig{Stdout: []string{"ok"}},
//	})
//	defer client.Close()
package lib
