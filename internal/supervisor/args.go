package supervisor

import "strconv"

// BuildArgs returns the llama-server argument list for cfg.
func BuildArgs(cfg Config) []string {
	args := []string{
		"--hf-repo", cfg.Model,
		"--port", strconv.Itoa(cfg.Port),
		"--host", cfg.Host,
		"--ctx-size", strconv.Itoa(cfg.CtxSize),
		"--n-gpu-layers", strconv.Itoa(cfg.GPULayers),
		"--parallel", strconv.Itoa(cfg.Parallel),
	}
	if cfg.Jinja {
		args = append(args, "--jinja")
	}
	args = append(args,
		"--cache-type-k", cfg.CacheTypeK,
		"--cache-type-v", cfg.CacheTypeV,
	)
	if cfg.ContBatching {
		args = append(args, "--cont-batching")
	}
	if cfg.FlashAttn {
		args = append(args, "--flash-attn")
	}
	if len(cfg.ExtraArgs) > 0 {
		args = append(args, cfg.ExtraArgs...)
	}
	return args
}
