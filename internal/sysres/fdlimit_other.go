//go:build !unix
// +build !unix

package sysres

// detectFDLimit returns a conservative default where rlimits are
// unavailable.
func detectFDLimit() uint64 {
	return 8192
}
