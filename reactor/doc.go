// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the native event loop a loop runtime iterates: a
// poll-mode reactor (epoll on Linux) with a thread-safe invoke queue woken through
// an eventfd, plus file-descriptor sources dispatched on the loop thread.
package reactor
