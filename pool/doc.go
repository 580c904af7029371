// Package pool
// Author: momentics <momentics@gmail.com>
//
// Frame memory layer for hioload-pw. Frames leave the loop worker as copies:
// the service reclaims its buffers when the process callback returns;
// the copies come from power-of-two slab classes recycled through lock-free queues.
package pool
