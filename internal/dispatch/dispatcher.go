package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"orbridge/internal/attachment"
	"orbridge/internal/logging"
	"orbridge/internal/services"
	"orbridge/internal/services/openrouter"
)

// Completer performs exactly one chat completion call.
type Completer interface {
	ChatCompletion(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// Dispatcher turns a Request into one upstream call (plus bounded retries)
// and interprets the reply. It holds no per-call state, so concurrent
// Dispatch calls are independent.
type Dispatcher struct {
	client   Completer
	resolver *attachment.Resolver
	policy   Policy
	logger   *slog.Logger
	sleeper  func(time.Duration)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithResolver overrides the attachment resolver.
func WithResolver(resolver *attachment.Resolver) Option {
	return func(d *Dispatcher) {
		if resolver != nil {
			d.resolver = resolver
		}
	}
}

// WithPolicy overrides the retry delays.
func WithPolicy(policy Policy) Option {
	return func(d *Dispatcher) {
		d.policy = policy
	}
}

// WithSleeper overrides how retry waits are performed (useful for tests).
// The context is still checked after the sleeper returns.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(d *Dispatcher) {
		d.sleeper = sleeper
	}
}

// New constructs a Dispatcher around the given completion client.
func New(client Completer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:   client,
		resolver: attachment.NewResolver(),
		policy:   DefaultPolicy(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = logging.NewComponentLogger(d.logger, "dispatch")
	return d
}

// Dispatch resolves attachments, sends the request with retries and interprets
// the reply. Upstream failures are returned as *Error; cancellation is
// returned as the context's error.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, req Request) (Result, error) {
	if d == nil || d.client == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "dispatch", "dispatch", "no completion client configured", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	target.Model = strings.TrimSpace(target.Model)
	if target.Model == "" {
		return Result{}, services.Wrap(services.ErrValidation, "dispatch", "dispatch", "model is required", nil)
	}
	if strings.TrimSpace(req.Instructions) == "" && len(req.Attachments) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "dispatch", "dispatch", "instructions are required", nil)
	}
	logger := logging.WithContext(ctx, d.logger).With(logging.String("model", target.Model))

	images, skipped, err := d.resolveAttachments(ctx, logger, req.Attachments)
	if err != nil {
		return Result{}, err
	}
	chat, err := BuildMessages(target, req, images)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "dispatch", "build messages", "invalid output schema", err)
	}
	logger.Debug("dispatching request",
		logging.Int("attachments", len(images)),
		logging.Int("skipped_attachments", skipped),
		logging.Bool("structured", req.Schema != nil),
		logging.String("schema_mode", string(target.SchemaMode)),
	)

	resp, attempts, err := d.send(ctx, logger, chat)
	if err != nil {
		return Result{}, err
	}

	text, finishReason := resp.Content()
	var result Result
	if refusal := resp.Refusal(); text == "" && refusal != "" {
		result = Result{Kind: ResultText, Text: refusal, Refused: true}
		logging.WarnWithContext(logger, "model refused the request; returning its refusal as text",
			"model_refused",
			logging.String("refusal_excerpt", openrouter.Snippet(refusal)),
			logging.String(logging.FieldErrorHint, "rephrase the instructions or pick a different model"),
			logging.String(logging.FieldImpact, "caller receives the refusal message instead of an answer"),
		)
	} else {
		result = interpret(text, req.Schema != nil)
	}
	if result.ParseError != nil {
		logging.WarnWithContext(logger, "structured reply was not valid JSON; returning raw text",
			"structured_parse_failed",
			logging.Error(result.ParseError),
			logging.String("reply_excerpt", openrouter.Snippet(text)),
			logging.String(logging.FieldErrorHint, "use a model with structured output support or switch schema mode"),
			logging.String(logging.FieldImpact, "caller receives free text instead of structured data"),
		)
	}
	result.Model = firstNonEmpty(resp.Model, target.Model)
	result.FinishReason = finishReason
	result.Attempts = attempts
	result.SkippedAttachments = skipped
	logger.Info("dispatch completed",
		logging.String("result_kind", string(result.Kind)),
		logging.Bool("refused", result.Refused),
		logging.Int("attempts", attempts),
		logging.String("finish_reason", finishReason),
	)
	return result, nil
}

// resolveAttachments resolves each attachment in order, skipping the ones that
// cannot be read. Only cancellation aborts the dispatch.
func (d *Dispatcher) resolveAttachments(ctx context.Context, logger *slog.Logger, atts []attachment.Attachment) ([]attachment.Resolved, int, error) {
	images := make([]attachment.Resolved, 0, len(atts))
	skipped := 0
	for idx, att := range atts {
		resolved, err := d.resolver.Resolve(ctx, att)
		if err == nil {
			images = append(images, resolved)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		skipped++
		logging.WarnWithContext(logger, "attachment skipped",
			"attachment_skipped",
			logging.Int("attachment_index", idx),
			logging.String("attachment", att.Label()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "attach image content, a data field, or a readable file path"),
			logging.String(logging.FieldImpact, "request sent without this attachment"),
		)
	}
	return images, skipped, nil
}

// send performs the attempt loop. The attempt counter and timers are local to
// the call.
func (d *Dispatcher) send(ctx context.Context, logger *slog.Logger, chat openrouter.ChatRequest) (*openrouter.ChatResponse, int, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, err
		}
		resp, err := d.client.ChatCompletion(ctx, chat)
		if err == nil {
			return resp, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempt, ctxErr
		}
		delay, retry := d.policy.retryDelay(ctx, err, attempt)
		if !retry {
			failure := classify(err, chat.Model, attempt)
			logging.ErrorWithContext(logger, "dispatch failed",
				"dispatch_failed",
				logging.String("error_kind", string(failure.Kind)),
				logging.Int("status", failure.Status),
				logging.String("provider", failure.Provider),
				logging.Int("attempts", attempt),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, errorHint(failure.Kind)),
			)
			return nil, attempt, failure
		}
		logging.WarnWithContext(logger, "upstream busy; retrying",
			"upstream_retry",
			logging.Int("attempt", attempt),
			logging.Int("status", statusCode(err)),
			logging.Duration("retry_in", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "provider is overloaded or rate limiting"),
			logging.String(logging.FieldImpact, "request delayed"),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}

func statusCode(err error) int {
	var statusErr *openrouter.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func errorHint(kind Kind) string {
	switch kind {
	case KindProviderAtCapacity:
		return "retry later or select a different model"
	case KindRateLimited:
		return "wait before retrying or upgrade the OpenRouter plan"
	case KindUnsupportedImageInput:
		return "configure a vision-capable model"
	case KindAuthentication:
		return "check the OpenRouter API key"
	case KindTransport:
		return "check network connectivity to openrouter.ai"
	default:
		return "check the upstream error detail"
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
