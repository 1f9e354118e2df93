// Package diagnostics watches process health around runner subprocess
// execution and collects the system summary the doctor command prints.
//
// Three pieces work together during a session:
//
//   - ResourceMonitor samples file descriptors, goroutines, and memory on an
//     interval and flags growth trends that look like leaks. Long sessions
//     spawn many runner subprocesses; a leaked pipe per step adds up.
//
//   - SafeExecutor gates each runner invocation behind a preflight resource
//     check and wraps the wait in panic recovery.
//
//   - CrashDumpWriter persists a JSON dump (resource history, session
//     context, redacted environment) when a panic escapes, so crashes in
//     unattended runs leave something to debug from.
//
// CollectSystemInfo is independent of the above: a best-effort hardware and
// host snapshot for doctor output.
package diagnostics
