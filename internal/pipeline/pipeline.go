// Package pipeline ties the call sites together for the text-generation
// flow: explicit <run:...> tags found in generated text are executed and
// spliced back in place, and the user's question is run through the
// auto-detection engine to propose additional invocations.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goatkit/funcflow/internal/coerce"
	"github.com/goatkit/funcflow/internal/detect"
	"github.com/goatkit/funcflow/internal/execlog"
	"github.com/goatkit/funcflow/internal/gateway"
	"github.com/goatkit/funcflow/internal/tagparse"
)

// Output is one function execution surfaced to the caller.
type Output struct {
	Function   string         `json:"function"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Status     string         `json:"status"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Trigger    string         `json:"trigger"`
	Confidence int            `json:"confidence,omitempty"`
}

// Pipeline executes explicit tags and auto-detected candidates through
// the gateway.
type Pipeline struct {
	gw     *gateway.Gateway
	engine *detect.Engine
	logger *slog.Logger
}

// New wires a pipeline.
func New(gw *gateway.Gateway, engine *detect.Engine, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{gw: gw, engine: engine, logger: logger}
}

// ProcessText executes every well-formed tag in text, left to right.
// Successful executions replace the tag span with the rendered result;
// failed ones leave the original tag untouched. Returns the rewritten
// text and one output per tag.
func (p *Pipeline) ProcessText(ctx context.Context, text string) (string, []Output) {
	tags := tagparse.Parse(text)
	if len(tags) == 0 {
		return text, nil
	}

	var b strings.Builder
	var outputs []Output
	last := 0
	for _, tag := range tags {
		args := make([]gateway.Arg, 0, len(tag.Args))
		for _, a := range tag.Args {
			args = append(args, gateway.Arg{Name: a.Key, Value: a.Value})
		}

		result, err := p.gw.Do(ctx, gateway.Request{
			Name:   tag.Name,
			Args:   args,
			Origin: execlog.OriginExplicit,
		})

		out := Output{
			Function:  tag.Name,
			Arguments: coerce.Values(tag.ArgMap()),
			Trigger:   "explicit",
			Status:    execlog.StatusSuccess,
			Result:    result,
		}
		b.WriteString(text[last:tag.Start])
		if err != nil {
			out.Status = execlog.StatusError
			out.Error = err.Error()
			b.WriteString(tag.Raw(text))
		} else {
			b.WriteString(renderResult(result))
		}
		last = tag.End
		outputs = append(outputs, out)
	}
	b.WriteString(text[last:])
	return b.String(), outputs
}

// ProcessQuestion runs auto-detection over the question and executes
// the proposed candidates.
func (p *Pipeline) ProcessQuestion(ctx context.Context, question string) []Output {
	var outputs []Output
	for _, c := range p.engine.Propose(question) {
		confidence := c.Confidence
		args := make([]gateway.Arg, 0, len(c.Args))
		for name, value := range c.Args {
			args = append(args, gateway.Arg{Name: name, Value: value})
		}

		result, err := p.gw.Do(ctx, gateway.Request{
			Name:       c.Function,
			Args:       args,
			Origin:     execlog.OriginAuto,
			Confidence: &confidence,
		})

		out := Output{
			Function:   c.Function,
			Arguments:  coerce.Values(c.Args),
			Trigger:    "auto",
			Confidence: confidence,
			Status:     execlog.StatusSuccess,
			Result:     result,
		}
		if err != nil {
			out.Status = execlog.StatusError
			out.Error = err.Error()
		}
		outputs = append(outputs, out)
	}
	return outputs
}

// Process handles a full answer/question pair: explicit tags in the
// generated answer first, then auto-detection against the question.
// No detection match is not an error; it simply adds no outputs.
func (p *Pipeline) Process(ctx context.Context, answer, question string) (string, []Output) {
	processed, outputs := p.ProcessText(ctx, answer)
	if question != "" {
		outputs = append(outputs, p.ProcessQuestion(ctx, question)...)
	}
	return processed, outputs
}

func renderResult(result any) string {
	if result == nil {
		return ""
	}
	return fmt.Sprintf("%v", result)
}
