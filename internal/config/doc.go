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

// Package config loads the workspaced configuration file.
//
// The file is YAML. Every key is optional: missing keys keep the values of
// Default, so an empty file yields a working configuration. Durations use Go
// duration strings such as "30s" or "5m".
//
//	namespace: <workspaceid>-dev
//	platformNamespace: workspaced-system
//	serviceAccountName: workspace
//	clusterRoles: [workspace-extra]
//	hardening:
//	  networkPolicies: true
//	  quota:
//	    limits.memory: 8Gi
//	timeouts:
//	  workspaceStart: 10m
//	consistencyCheckInterval: 2m
package config
