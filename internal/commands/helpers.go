// Package commands implements the dashcache subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/output"
)

// requireApp returns the app stored by the root command.
func requireApp(app *appctx.App) error {
	if app == nil {
		return fmt.Errorf("app not initialized")
	}
	return nil
}

// parseParams turns repeated --param k=v flags into url.Values.
func parseParams(raw []string) (url.Values, error) {
	values := url.Values{}
	for _, p := range raw {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, output.ErrUsageHint(
				fmt.Sprintf("Invalid --param %q", p),
				"Use --param key=value",
			)
		}
		values.Add(k, v)
	}
	return values, nil
}

// applyJQ runs a jq program over the JSON document and returns its single
// result, or every result as a list when it yields more than one.
func applyJQ(data json.RawMessage, expr string) (any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, output.ErrUsageHint("Invalid --jq expression", err.Error())
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, output.ErrUsageHint("Invalid --jq expression", err.Error())
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, output.ErrAPI(0, fmt.Sprintf("response is not JSON: %v", err))
	}

	var results []any
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, output.ErrUsageHint("--jq failed", err.Error())
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
