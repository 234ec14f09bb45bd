// Package tasks provides the built-in task handlers shipped with the
// gateway. Deployments register their own handlers alongside or instead of
// these.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paygate-labs/x402-gateway-go/dispatch"
)

// RegisterBuiltins binds the built-in handlers to the dispatcher.
func RegisterBuiltins(d *dispatch.Dispatcher) {
	d.Register("analyze", Analyze)
	d.Register("optimize", Optimize)
	d.Register("predict", Predict)
}

// Analyze summarizes the supplied parameters.
func Analyze(ctx context.Context, params map[string]any) (map[string]any, error) {
	subject, _ := params["subject"].(string)
	if subject == "" {
		subject = "input"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return map[string]any{
		"id":          uuid.NewString(),
		"task":        "analyze",
		"subject":     subject,
		"parameters":  keys,
		"completedAt": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Optimize echoes the optimization target with the applied strategy.
func Optimize(ctx context.Context, params map[string]any) (map[string]any, error) {
	target, _ := params["target"].(string)
	if target == "" {
		target = "throughput"
	}
	strategy, _ := params["strategy"].(string)
	if strategy == "" {
		strategy = "balanced"
	}

	return map[string]any{
		"id":          uuid.NewString(),
		"task":        "optimize",
		"target":      target,
		"strategy":    strategy,
		"completedAt": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Predict reports the requested horizon back with the model applied.
func Predict(ctx context.Context, params map[string]any) (map[string]any, error) {
	horizon, ok := params["horizon"].(float64)
	if !ok || horizon <= 0 {
		horizon = 24
	}

	return map[string]any{
		"id":          uuid.NewString(),
		"task":        "predict",
		"horizon":     fmt.Sprintf("%.0fh", horizon),
		"model":       "baseline",
		"completedAt": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
