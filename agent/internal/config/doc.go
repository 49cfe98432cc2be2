// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent, Host, Log}: full config tree parsed from YAML
//   - AgentConfig: api_server, api_token / api_token_env, retry, time_retry,
//     request_timeout; Token() resolves the credential, RetryDelay() converts
//     time_retry to a duration
//   - HostConfig: url, api_key_env, port, metrics_endpoint for the printer host
//   - LogConfig: level (debug|info|warn|error)
//
// Load(path) reads the YAML file, applies defaults (public Volta server,
// 1 attempt, 2 s between attempts, host on localhost:5000), then validates.
// An empty credential is not a load error: the agent starts, logs the
// problem at verification time and picks up the token on the next reload.
//
// LoadDotEnv loads the nearest .env file so *_env settings can live there.
//
// Watch(ctx, path, onChange) uses fsnotify on the file's directory and calls
// onChange with the newly parsed Config whenever the file is written or
// replaced, which covers the rename→create pattern of atomic-save editors.
package config
