// Package watch implements mdwatch's live-render loop: a background poller
// that scans the watched path for modification-time changes on a fixed
// delay, and a foreground command reader that serves refresh/exit requests
// from standard input. A Session ties the two together for one invocation
// and owns their shutdown.
//
// Change detection is purely timestamp polling. There is deliberately no
// inotify/kqueue integration: polling behaves identically across platforms
// and network mounts, and the render workload is cheap enough that a small
// poll interval is an acceptable cost.
package watch
