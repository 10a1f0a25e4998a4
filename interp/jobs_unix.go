// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

//go:build unix

package interp

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttr puts an external command's child in its own process
// group, the way a background start does on a real POSIX shell (spec
// §4.7 "Background starts set their own process group").
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalNumbers maps the trap builtin's signal names to their
// platform number (spec §4.6 "Signals 1..N are catchable except
// SIGKILL and SIGSTOP").
var signalNumbers = map[string]int{
	"HUP": int(unix.SIGHUP), "INT": int(unix.SIGINT), "QUIT": int(unix.SIGQUIT),
	"ILL": int(unix.SIGILL), "TRAP": int(unix.SIGTRAP), "ABRT": int(unix.SIGABRT),
	"BUS": int(unix.SIGBUS), "FPE": int(unix.SIGFPE), "KILL": int(unix.SIGKILL),
	"USR1": int(unix.SIGUSR1), "SEGV": int(unix.SIGSEGV), "USR2": int(unix.SIGUSR2),
	"PIPE": int(unix.SIGPIPE), "ALRM": int(unix.SIGALRM), "TERM": int(unix.SIGTERM),
	"CHLD": int(unix.SIGCHLD), "CONT": int(unix.SIGCONT), "STOP": int(unix.SIGSTOP),
	"TSTP": int(unix.SIGTSTP), "TTIN": int(unix.SIGTTIN), "TTOU": int(unix.SIGTTOU),
}

func uncatchableSignal(num int) bool {
	return num == int(unix.SIGKILL) || num == int(unix.SIGSTOP)
}
