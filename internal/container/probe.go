package container

import "context"

// Probe adapts one tracked container to the readiness prober's target
// shape, mirroring the pod-side adapter in internal/kube.
type Probe struct {
	Runtime *Runtime
	Name    string
}

func (p Probe) RunCommand(ctx context.Context, command []string) (string, error) {
	return p.Runtime.ExecCommand(ctx, p.Name, command)
}

func (p Probe) ReadLogs(ctx context.Context, tail int64) (string, error) {
	return p.Runtime.Logs(ctx, p.Name, int(tail))
}
