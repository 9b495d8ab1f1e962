// Package sysres inspects process resource limits so mass probing does not
// run the process out of file descriptors.
package sysres

// FDLimit reports the soft open-file limit for the current process.
func FDLimit() uint64 {
	return detectFDLimit()
}

// fdsPerProbe is a worst-case estimate of descriptors one in-flight probe
// holds (tunnel socket plus resolver traffic).
const fdsPerProbe = 4

// CapConcurrency clamps the requested probe concurrency so at most 70% of
// the fd budget can be in use at once. Requests of zero or less get the
// fallback unchanged, subject to the same clamp.
func CapConcurrency(requested, fallback int) int {
	c := requested
	if c <= 0 {
		c = fallback
	}
	if limit := FDLimit(); limit > 0 {
		maxByFD := int(limit * 70 / 100 / fdsPerProbe)
		if maxByFD < 1 {
			maxByFD = 1
		}
		if c > maxByFD {
			c = maxByFD
		}
	}
	return c
}
