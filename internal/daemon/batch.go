package daemon

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"nexus/internal/model"
)

// batchStep is one parsed step of a batch script.
type batchStep struct {
	sepBefore   byte // 0 for the first step, ';' or '|' otherwise
	conditional bool // leading '?': run only if the previous step succeeded truthily
	command     string
	tokens      []string // remaining whitespace-separated tokens, quotes already stripped
}

// positionalField names the Request field a step's first bare (non key=value)
// token is assigned to, per command.
var positionalField = map[string]string{
	"find":          "query",
	"click_element": "name",
	"click_mark":    "n",
	"type_text":     "text",
	"web_input":     "text",
	"key":           "keys",
	"web_navigate":  "url",
}

// RunBatch executes req.Script's mini-language step by step against
// dispatcher and returns the batch command's own response: {final: ...} by
// default, {steps: [...]} when req.Verbose is set.
func RunBatch(ctx context.Context, dispatcher Dispatcher, req model.Request) model.Response {
	steps, err := parseBatch(req.Script)
	if err != nil {
		return model.ErrResponse("batch", model.NewError(model.ErrBadRequest, "invalid batch script: %v", err))
	}
	if len(steps) == 0 {
		return model.ErrResponse("batch", model.NewError(model.ErrBadRequest, "empty batch script"))
	}

	vars := map[string]any{}
	var responses []model.Response
	var last model.Response
	prevOK := true
	prevTruthy := true

	for _, step := range steps {
		if step.conditional && !(prevOK && prevTruthy) {
			responses = append(responses, model.Response{OK: true, Command: step.command, Data: map[string]any{"skipped": true}})
			continue
		}
		if step.sepBefore == '|' && !prevOK {
			break
		}
		if step.sepBefore == ';' && !prevOK && !req.ContinueOnError {
			break
		}

		stepReq := seedStepRequest(req, step)
		stepReq, buildErr := applyTokens(stepReq, step, vars)
		if buildErr != nil {
			resp := model.ErrResponse(step.command, model.NewError(model.ErrBadRequest, "%v", buildErr))
			responses = append(responses, resp)
			last = resp
			prevOK = false
			prevTruthy = false
			continue
		}

		var resp model.Response
		if stepReq.Command == "batch" {
			resp = model.ErrResponse("batch", model.NewError(model.ErrBadRequest, "batch steps cannot themselves be batch"))
		} else {
			resp = dispatcher.Dispatch(ctx, stepReq)
		}

		responses = append(responses, resp)
		last = resp
		prevOK = resp.OK
		prevTruthy = truthy(resp.Data)
		mergeVars(vars, resp.Data)
	}

	if req.Verbose {
		datas := make([]any, len(responses))
		for i, r := range responses {
			datas[i] = r
		}
		return model.OKResponse("batch", map[string]any{"steps": datas})
	}
	return model.Response{OK: last.OK, Command: "batch", Data: map[string]any{"final": last}}
}

// truthy reports whether a step's own result data carries a truthy value
// under any key — used by the "?" conditional prefix to decide whether the
// immediately preceding step (not any earlier one) "returned a truthy
// value".
func truthy(data map[string]any) bool {
	for _, v := range data {
		switch t := v.(type) {
		case bool:
			if t {
				return true
			}
		case string:
			if t != "" {
				return true
			}
		case float64:
			if t != 0 {
				return true
			}
		case nil:
		default:
			return true
		}
	}
	return false
}

// seedStepRequest copies the batch-wide defaults (app scope, format, global
// timeout) onto a fresh per-step request, so a step need only specify what's
// specific to it.
func seedStepRequest(batchReq model.Request, step batchStep) model.Request {
	return model.Request{
		Command:   step.command,
		Format:    batchReq.Format,
		App:       batchReq.App,
		TimeoutMs: batchReq.TimeoutMs,
		Verify:    batchReq.Verify,
		Heal:      batchReq.Heal,
	}
}

// applyTokens sets fields on req from step's tokens: a leading bare token
// goes to that command's positionalField, everything else must be key=value
// (value may be a $var interpolation resolved against vars).
func applyTokens(req model.Request, step batchStep, vars map[string]any) (model.Request, error) {
	first := true
	for _, tok := range step.tokens {
		key, value, isPair := strings.Cut(tok, "=")
		if !isPair {
			field, ok := positionalField[step.command]
			if !ok {
				return req, fmt.Errorf("%s: bare argument %q with no positional field for this command", step.command, tok)
			}
			if !first {
				return req, fmt.Errorf("%s: more than one bare argument", step.command)
			}
			key, value = field, tok
		}
		first = false

		resolved, err := interpolate(value, vars)
		if err != nil {
			return req, err
		}
		if err := setField(&req, key, resolved); err != nil {
			return req, err
		}
	}
	return req, nil
}

// interpolate replaces a "$name"-shaped value with the stringified value of
// vars["name"], the most recent step result carrying that key.
func interpolate(value string, vars map[string]any) (string, error) {
	if !strings.HasPrefix(value, "$") {
		return value, nil
	}
	name := strings.TrimPrefix(value, "$")
	v, ok := vars[name]
	if !ok {
		return "", fmt.Errorf("undefined batch variable $%s", name)
	}
	return fmt.Sprint(v), nil
}

func setField(req *model.Request, key, value string) error {
	switch strings.ToLower(key) {
	case "command":
		req.Command = value
	case "format":
		req.Format = model.Format(value)
	case "focus":
		req.Focus = value
	case "match":
		req.Match = value
	case "match_kind":
		req.MatchKind = value
	case "region":
		req.Region = value
	case "app":
		req.App = value
	case "name":
		req.Name = value
	case "role":
		req.Role = model.Role(value)
	case "selector":
		req.Selector = value
	case "query":
		req.Query = value
	case "text":
		req.Text = value
	case "keys", "key":
		req.Keys = value
	case "url":
		req.URL = value
	case "script":
		req.Script = value
	case "index":
		return setInt(&req.Index, value)
	case "n":
		return setInt(&req.N, value)
	case "x":
		return setInt(&req.X, value)
	case "y":
		return setInt(&req.Y, value)
	case "dx":
		return setInt(&req.DX, value)
	case "dy":
		return setInt(&req.DY, value)
	case "ticks":
		return setInt(&req.Ticks, value)
	case "timeout_ms":
		return setInt(&req.TimeoutMs, value)
	case "diff":
		return setBool(&req.Diff, value)
	case "summary":
		return setBool(&req.Summary, value)
	case "force":
		return setBool(&req.Force, value)
	case "verify":
		return setBool(&req.Verify, value)
	case "heal":
		return setBool(&req.Heal, value)
	case "mark":
		return setBool(&req.Mark, value)
	case "continue_on_error":
		return setBool(&req.ContinueOnError, value)
	case "verbose":
		return setBool(&req.Verbose, value)
	default:
		return fmt.Errorf("unknown batch field %q", key)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", value)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("expected bool, got %q", value)
	}
	*dst = b
	return nil
}

// mergeVars flattens a step's response data into vars so that $name-style
// interpolation can reach fields nested one object deep (e.g. find's
// {top: {name: "Save"}} makes $name resolve to "Save"), scenario S6.
// Later steps overwrite earlier ones on key collision: "most recent" wins.
func mergeVars(vars map[string]any, data map[string]any) {
	for k, v := range data {
		vars[k] = v
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range nested {
				vars[nk] = nv
			}
		}
	}
}

// parseBatch splits script into steps on top-level ';' and '|' (outside
// double quotes), recording each step's separator and its leading "?".
func parseBatch(script string) ([]batchStep, error) {
	var steps []batchStep
	var cur strings.Builder
	sepBefore := byte(0)
	inQuotes := false

	flush := func() error {
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		if text == "" {
			if len(steps) == 0 && sepBefore == 0 {
				return nil
			}
			return fmt.Errorf("empty step")
		}
		conditional := false
		if strings.HasPrefix(text, "?") {
			conditional = true
			text = strings.TrimSpace(text[1:])
		}
		tokens, err := tokenize(text)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			return fmt.Errorf("step has no command")
		}
		steps = append(steps, batchStep{
			sepBefore:   sepBefore,
			conditional: conditional,
			command:     tokens[0],
			tokens:      tokens[1:],
		})
		return nil
	}

	for _, r := range script {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case !inQuotes && (r == ';' || r == '|'):
			if err := flush(); err != nil {
				return nil, err
			}
			sepBefore = byte(r)
		default:
			cur.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted string")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return steps, nil
}

// tokenize splits text on whitespace, treating a double-quoted run as one
// token with the quotes stripped.
func tokenize(text string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	hasCur := false

	flush := func() {
		if hasCur {
			tokens = append(tokens, cur.String())
			cur.Reset()
			hasCur = false
		}
	}

	for _, r := range text {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			hasCur = true
		case !inQuotes && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
			hasCur = true
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted string in step %q", text)
	}
	flush()
	return tokens, nil
}
