package lib_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/scriptrun/pkg/lib"
)

// This example shows how to create a client using the fake engine for testing.
func Example_testing() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "scriptrun-example-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath: filepath.Join(dir, "scriptrun.db"),
		Engine: lib.EngineFake,
		Fake:   lib.FakeConfig{Stdout: []string{"Hello, Ada!"}},
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	res, err := client.Run(ctx, lib.SubmitOpts{
		Script: lib.Script{
			Name:       "greeting",
			Content:    `Write-Output "Hello, $env:SCRIPTRUN_PARAM_Name!"`,
			Parameters: []lib.Parameter{{Name: "Name", Type: lib.ParameterTypeString, Required: true}},
		},
		Values: map[string]any{"Name": "Ada"},
	}, nil)
	if err != nil {
		panic(err)
	}

	fmt.Printf("%s: %s\n", res.Status, res.Stdout())

	// Output:
	// completed: Hello, Ada!
}

// This example shows how restricted scripts are rejected before running.
func Example_rejected() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "scriptrun-example-rejected-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath: filepath.Join(dir, "scriptrun.db"),
		Engine: lib.EngineFake,
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	id, err := client.Submit(ctx, lib.SubmitOpts{
		Script: lib.Script{Name: "cleanup", Content: "Remove-Item C:\\temp -Recurse"},
		Trust:  lib.TrustRestricted,
	})
	if errors.Is(err, lib.ErrRejected) {
		res, _ := client.GetResult(ctx, id)
		for _, is := range res.Issues {
			fmt.Println(is)
		}
	}

	// Output:
	// restricted command detected: Remove-Item
}
