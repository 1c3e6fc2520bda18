package server

import "syscall"

// setPdeathsig sets Pdeathsig so a worker dies if the dispatcher
// crashes. Only available on Linux.
func setPdeathsig(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGTERM
}
