package uihost

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/uibridge/cdpgate/internal/shared/types"
)

// LogEntry is one captured console line.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// page owns one goja runtime. Everything here runs on the host loop; the VM
// is never touched from another goroutine.
type page struct {
	id      types.PageID
	title   string
	url     string
	vm      *goja.Runtime
	console []LogEntry
}

func newPage(h *Host, id types.PageID, title, url string) *page {
	p := &page{
		id:    id,
		title: title,
		url:   url,
		vm:    goja.New(),
	}
	p.setupGlobals(h)
	return p
}

// setupGlobals configures the VM's global surface.
func (p *page) setupGlobals(h *Host) {
	vm := p.vm

	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())

	console := vm.NewObject()
	console.Set("log", p.makeConsoleFunc("log"))
	console.Set("warn", p.makeConsoleFunc("warn"))
	console.Set("error", p.makeConsoleFunc("error"))
	console.Set("info", p.makeConsoleFunc("info"))
	vm.Set("console", console)

	pageObj := vm.NewObject()
	pageObj.Set("id", string(p.id))
	pageObj.Set("title", p.title)
	pageObj.Set("url", p.url)
	vm.Set("page", pageObj)

	// emit pushes a fire-and-forget message to the attached DevTools client.
	vm.Set("emit", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		payload, err := sonic.Marshal(call.Arguments[0].Export())
		if err != nil {
			panic(vm.NewTypeError("emit: %s", err.Error()))
		}
		h.send(p.id, payload, nil)
		return goja.Undefined()
	})

	// query sends a message and invokes cb with the correlated response.
	// The callback hops back onto the host loop before touching the VM.
	vm.Set("query", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(vm.NewTypeError("query expects (message, callback)"))
		}
		fn, ok := goja.AssertFunction(call.Arguments[1])
		if !ok {
			panic(vm.NewTypeError("query callback must be a function"))
		}
		payload, err := sonic.Marshal(call.Arguments[0].Export())
		if err != nil {
			panic(vm.NewTypeError("query: %s", err.Error()))
		}
		h.send(p.id, payload, h.resultCallback(p.id, fn))
		return goja.Undefined()
	})
}

func (p *page) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}

		p.console = append(p.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		return goja.Undefined()
	}
}

// evaluate runs an expression and shapes the outcome like a protocol
// evaluation result.
func (p *page) evaluate(expression string) map[string]interface{} {
	val, err := p.vm.RunString(expression)
	if err != nil {
		return map[string]interface{}{
			"exceptionDetails": map[string]interface{}{"text": err.Error()},
		}
	}
	return map[string]interface{}{"result": remoteObject(val)}
}

func (p *page) resetConsole() {
	p.console = nil
}

func (p *page) consoleSnapshot() []LogEntry {
	return append([]LogEntry(nil), p.console...)
}

func remoteObject(val goja.Value) map[string]interface{} {
	if val == nil || goja.IsUndefined(val) {
		return map[string]interface{}{"type": "undefined"}
	}
	if goja.IsNull(val) {
		return map[string]interface{}{"type": "object", "subtype": "null", "value": nil}
	}

	export := val.Export()
	obj := map[string]interface{}{"value": export}
	switch export.(type) {
	case string:
		obj["type"] = "string"
	case bool:
		obj["type"] = "boolean"
	case int64, float64:
		obj["type"] = "number"
	default:
		obj["type"] = "object"
	}
	return obj
}
