/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package workspace runs workspace runtimes on Kubernetes.
//
// A Runtime drives one workspace through the STARTING, RUNNING and STOPPING
// phases recorded by the store package. Start provisions the environment into
// the workspace namespace and waits for every machine to run. Stop tears the
// namespace contents down again, interrupting a start that is still in flight.
//
// The StartSynchronizer couples a start to concurrent stop requests: it
// listens for stop events on the bus and cancels the start context when one
// arrives for its workspace.
//
// Example usage:
//
//	registry := workspace.NewRegistry(workspace.Dependencies{
//		Store:      store.New(c, "workspaced-system"),
//		Bus:        events.NewBus(),
//		Namespaces: factory,
//		Config:     workspace.DefaultConfig(),
//	})
//	rt, err := registry.Prepare(ctx, id, env)
//	if err != nil {
//		return err
//	}
//	if err := rt.Start(ctx, nil); err != nil {
//		return err
//	}
package workspace
