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

package store

import (
	"context"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/infra"
)

// PutMachine records machine under name for the runtime of workspaceID,
// replacing any previous record.
func (s *Store) PutMachine(ctx context.Context, workspaceID, name string, machine workspacev1alpha1.MachineRecord) error {
	found, err := s.mutate(ctx, workspaceID, func(rt *workspacev1alpha1.WorkspaceRuntime) (bool, error) {
		if !rt.Status.Phase.IsActive() {
			return false, runtimeNotActive(workspaceID)
		}
		if rt.Status.Machines == nil {
			rt.Status.Machines = make(map[string]workspacev1alpha1.MachineRecord)
		}
		rt.Status.Machines[name] = *machine.DeepCopy()
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return runtimeNotActive(workspaceID)
	}
	return nil
}

// GetMachines returns the machine records of workspaceID. A workspace without
// a runtime has no machines.
func (s *Store) GetMachines(ctx context.Context, workspaceID string) (map[string]workspacev1alpha1.MachineRecord, error) {
	rt, err := s.Get(ctx, workspaceID)
	if err != nil || rt == nil {
		return nil, err
	}
	return rt.Status.Machines, nil
}

// UpdateMachineStatus sets the status of machine name.
func (s *Store) UpdateMachineStatus(ctx context.Context, workspaceID, name string, status workspacev1alpha1.MachineStatus) error {
	seen := false
	_, err := s.mutate(ctx, workspaceID, func(rt *workspacev1alpha1.WorkspaceRuntime) (bool, error) {
		seen = true
		machine, ok := rt.Status.Machines[name]
		if !ok {
			return false, machineNotFound(workspaceID, name)
		}
		if machine.Status == status {
			return false, nil
		}
		machine.Status = status
		rt.Status.Machines[name] = machine
		return true, nil
	})
	if err != nil {
		return err
	}
	if !seen {
		return runtimeNotActive(workspaceID)
	}
	return nil
}

// UpdateServerStatus sets the status of server on machine and reports
// whether the stored status changed.
func (s *Store) UpdateServerStatus(ctx context.Context, workspaceID, machineName, server string,
	status workspacev1alpha1.ServerStatus) (bool, error) {
	return s.mutate(ctx, workspaceID, func(rt *workspacev1alpha1.WorkspaceRuntime) (bool, error) {
		machine, ok := rt.Status.Machines[machineName]
		if !ok {
			return false, machineNotFound(workspaceID, machineName)
		}
		record, ok := machine.Servers[server]
		if !ok {
			return false, infra.New(infra.KindInfrastructure, "server %q of machine %q not found", server, machineName)
		}
		if record.Status == status {
			return false, nil
		}
		record.Status = status
		machine.Servers[server] = record
		rt.Status.Machines[machineName] = machine
		return true, nil
	})
}
