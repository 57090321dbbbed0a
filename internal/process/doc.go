// Package process abandons rendering subprocesses together with everything
// they spawned.
package process
