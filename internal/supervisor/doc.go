// Package supervisor launches and supervises the llama-server child process.
// It is structured into small files by concern:
//
//   - supervisor.go: Supervisor type, Start/StartAsync readiness polling, Stop.
//   - config.go: Config and package defaults; withDefaults fills unset fields.
//   - args.go: llama-server argument list construction.
//   - types.go: lifecycle State values.
//   - errors.go: ConfigError and StartupError plus IsXxx helpers.
//   - output.go: line splitting and bounded tail capture of child output.
//   - events.go / eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus state gauge.
//
// A Supervisor owns exactly one child. Start either converges to StateReady
// within the startup timeout or fails permanently; there is no relaunch.
package supervisor
