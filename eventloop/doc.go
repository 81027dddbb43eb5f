// Package eventloop runs the supervisor's single-threaded control loop. One
// epoll instance watches exactly two sources: a self-pipe fed by SIGCHLD
// notifications and the listening Unix socket. Accept readiness hands a new
// connection to the registry; termination readiness reaps the child, stops
// both sources, drains the registry and reports the child's status.
//
// The loop is Linux-only; on other platforms New reports ErrSetup.
package eventloop
