// Package handler adapts a sandboxed game bundle to the typed
// init_state/handle_event boundary the event loop drives.
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/encryptor"
)

// GameHandler is the typed sandbox boundary.  Implementations must be
// deterministic: identical inputs yield byte-identical outputs.
type GameHandler interface {
	InitState(ctx *core.GameContext, init api.InitAccount) (core.EventEffects, error)
	HandleEvent(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error)
}

// deterministicPrelude pins the ambient sources a bundle could reach for.
// Handlers get wall-clock time only through the effect's timestamp field.
const deterministicPrelude = `
Math.random = function() { throw new Error("host randomness is not available"); };
Date.now = function() { return 0; };
`

// WrappedHandler runs a JavaScript game bundle inside a goja runtime.  One
// instance is owned by one event loop; invocations are synchronous.
type WrappedHandler struct {
	vm       *goja.Runtime
	initFn   goja.Callable
	handleFn goja.Callable
	enc      encryptor.Encryptor
}

// NewWrappedHandler loads the bundle and resolves its two entry points.
func NewWrappedHandler(bundle *core.GameBundle, enc encryptor.Encryptor) (*WrappedHandler, error) {
	vm := goja.New()
	// Byte fields cross the boundary base64-encoded; bundles use these to
	// unpack and repack their state.
	if err := vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(base64.StdEncoding.EncodeToString([]byte(call.Argument(0).String())))
	}); err != nil {
		return nil, fmt.Errorf("handler: install btoa: %w", err)
	}
	if err := vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		decoded, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(vm.ToValue(fmt.Sprintf("atob: %v", err)))
		}
		return vm.ToValue(string(decoded))
	}); err != nil {
		return nil, fmt.Errorf("handler: install atob: %w", err)
	}
	if _, err := vm.RunString(deterministicPrelude); err != nil {
		return nil, fmt.Errorf("handler: load prelude: %w", err)
	}
	if _, err := vm.RunString(string(bundle.Data)); err != nil {
		return nil, fmt.Errorf("handler: load bundle %s: %w", bundle.Addr, err)
	}
	initFn, ok := goja.AssertFunction(vm.Get("init_state"))
	if !ok {
		return nil, fmt.Errorf("handler: bundle %s: init_state is not a function", bundle.Addr)
	}
	handleFn, ok := goja.AssertFunction(vm.Get("handle_event"))
	if !ok {
		return nil, fmt.Errorf("handler: bundle %s: handle_event is not a function", bundle.Addr)
	}
	return &WrappedHandler{vm: vm, initFn: initFn, handleFn: handleFn, enc: enc}, nil
}

// InitState runs init_state against a fresh effect and folds the result
// back.  The context is replaced only on success.
func (h *WrappedHandler) InitState(ctx *core.GameContext, init api.InitAccount) (core.EventEffects, error) {
	next := ctx.Clone()
	effect := next.DeriveEffect()

	result, err := h.call(h.initFn, effect, init)
	if err != nil {
		return core.EventEffects{}, err
	}
	effects, err := next.ApplyEffect(result, true)
	if err != nil {
		return core.EventEffects{}, err
	}
	*ctx = *next
	return effects, nil
}

// HandleEvent applies general handling, invokes the sandbox and folds the
// mutated effect back.  On any error the context is left unchanged.
func (h *WrappedHandler) HandleEvent(ctx *core.GameContext, ev *api.Event) (core.EventEffects, error) {
	next := ctx.Clone()
	// An applied event consumes the pending dispatch; general handling or
	// the effect may arm a new one.
	next.CancelDispatch()
	if err := next.ApplyGeneralEvent(ev); err != nil {
		return core.EventEffects{}, err
	}

	effect := next.DeriveEffect()
	if err := h.fillDecrypted(next, effect); err != nil {
		return core.EventEffects{}, err
	}

	result, err := h.call(h.handleFn, effect, ev)
	if err != nil {
		return core.EventEffects{}, err
	}
	effects, err := next.ApplyEffect(result, false)
	if err != nil {
		return core.EventEffects{}, err
	}
	*ctx = *next
	return effects, nil
}

// fillDecrypted exposes the decrypted randomness and decision values for
// this tick.  Results are cached on the random state so replays stay cheap.
func (h *WrappedHandler) fillDecrypted(ctx *core.GameContext, effect *api.Effect) error {
	for _, rs := range ctx.RandomStates {
		if rs.Status.Kind != core.RandomStatusReady {
			continue
		}
		if len(rs.RevealedValues) == 0 {
			ciphertexts := rs.RevealedCiphertexts()
			if len(ciphertexts) == 0 {
				continue
			}
			secrets, err := rs.RevealedSecrets()
			if err != nil {
				return err
			}
			values, err := h.enc.DecryptWithSecrets(ciphertexts, secrets, rs.Options)
			if err != nil {
				return err
			}
			rs.RevealedValues = values
		}
		if effect.Revealed == nil {
			effect.Revealed = make(map[int]map[int]string)
		}
		revealed := make(map[int]string, len(rs.RevealedValues))
		for k, v := range rs.RevealedValues {
			revealed[k] = v
		}
		effect.Revealed[rs.ID] = revealed
	}

	for _, d := range ctx.DecisionStates {
		if !d.IsReleased() {
			continue
		}
		if d.Value == "" {
			buf := append([]byte(nil), d.Answer.Ciphertext...)
			if err := h.enc.Apply(d.Secret, buf); err != nil {
				return err
			}
			if len(buf) == 0 {
				return core.ErrInvalidSecret
			}
			if err := d.SetReleasedValue(string(buf)); err != nil {
				return err
			}
		}
		if effect.Answered == nil {
			effect.Answered = make(map[int]string)
		}
		effect.Answered[d.ID] = d.Value
	}
	return nil
}

// call marshals the arguments into the runtime, invokes the entry point and
// parses the returned effect.
func (h *WrappedHandler) call(fn goja.Callable, effect *api.Effect, extra any) (*api.Effect, error) {
	effectVal, err := h.toValue(effect)
	if err != nil {
		return nil, err
	}
	extraVal, err := h.toValue(extra)
	if err != nil {
		return nil, err
	}

	result, err := fn(goja.Undefined(), effectVal, extraVal)
	if err != nil {
		return nil, classifySandboxError(err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, &core.SandboxFault{Kind: core.SandboxExecutionError, Msg: "entry point returned no effect"}
	}

	raw, err := json.Marshal(result.Export())
	if err != nil {
		return nil, &core.SandboxFault{Kind: core.SandboxExecutionError, Msg: fmt.Sprintf("export effect: %v", err)}
	}
	var out api.Effect
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &core.SandboxFault{Kind: core.SandboxExecutionError, Msg: fmt.Sprintf("malformed effect: %v", err)}
	}
	return &out, nil
}

// toValue crosses the boundary via JSON so byte fields travel as base64 and
// the sandbox never aliases host memory.
func (h *WrappedHandler) toValue(v any) (goja.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("handler: marshal input: %w", err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("handler: rebuild input: %w", err)
	}
	return h.vm.ToValue(plain), nil
}

func classifySandboxError(err error) error {
	var stackOverflow *goja.StackOverflowError
	if errors.As(err, &stackOverflow) {
		return &core.SandboxFault{Kind: core.SandboxMemoryOverflow, Msg: err.Error()}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &core.SandboxFault{Kind: core.SandboxMemoryOverflow, Msg: err.Error()}
	}
	return &core.SandboxFault{Kind: core.SandboxExecutionError, Msg: err.Error()}
}
