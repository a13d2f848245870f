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

// Package platform places workspace objects that must live in the shared
// platform namespace instead of the workspace namespace.
//
// # Overview
//
// Some objects produced by an environment, typically gateway route config maps and
// ingresses fronting the platform gateway, carry the platform namespace annotation.
// The runtime hands those to a Manager, which creates or updates them in the
// configured platform namespace and labels them with the owning workspace.
//
// # Ownership
//
// Owner references cannot cross namespaces, so ownership is tracked with the
// workspace id label plus owner annotations recording the workspace namespace and
// environment. An object already owned by another workspace is never overwritten.
//
// # Cleanup
//
// CleanUp removes every config map and ingress labelled for a workspace. Missing
// objects are not an error, so cleanup can run after a partial start.
//
// # Example Usage
//
//	mgr := platform.NewManager(k8sClient, "workspaced-system")
//	if err := mgr.CreateIngresses(ctx, identity, ingresses); err != nil {
//	    return err
//	}
//	defer mgr.CleanUp(ctx, identity.WorkspaceID)
package platform
