// Package dialogue runs the per-identity onboarding and question-answering
// state machine.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/advisor"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/channel"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/compose"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/language"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/memory"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/observability"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/policy"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/session"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/translate"
)

const maxNameRunes = 64

// Outcome labels what one message did.
type Outcome string

const (
	OutcomeMalformed          Outcome = "malformed"
	OutcomeLanguagePrompt     Outcome = "language_prompt"
	OutcomeLanguageSet        Outcome = "language_set"
	OutcomeLanguageUnresolved Outcome = "language_unresolved"
	OutcomeReminder           Outcome = "reminder"
	OutcomeEmptyName          Outcome = "empty_name"
	OutcomeRegistered         Outcome = "registered"
	OutcomeAnswered           Outcome = "answered"
	OutcomeQueryUnavailable   Outcome = "query_unavailable"
	OutcomeStoreFailed        Outcome = "store_failed"
	OutcomePanic              Outcome = "panic"
)

var allOutcomes = []Outcome{
	OutcomeMalformed, OutcomeLanguagePrompt, OutcomeLanguageSet, OutcomeLanguageUnresolved,
	OutcomeReminder, OutcomeEmptyName, OutcomeRegistered, OutcomeAnswered,
	OutcomeQueryUnavailable, OutcomeStoreFailed, OutcomePanic,
}

// Result reports what Handle did with one inbound message.
type Result struct {
	Identity string
	From     session.State
	To       session.State
	Outcome  Outcome
	// Replies lists every outbound message generated, in order. Sent counts
	// how many of them were delivered before the first send failure.
	Replies  []chat.OutboundMessage
	Sent     int
	Degraded bool
}

// Config wires the controller's collaborators. Memory and Metrics are
// optional.
type Config struct {
	Catalog   *language.Catalog
	Store     session.Store
	Locker    *session.Locker
	Gateway   translate.Gateway
	Processor advisor.Processor
	Composer  *compose.Composer
	Sender    channel.Sender
	Memory    memory.Store
	Metrics   *observability.Metrics
	Logger    *slog.Logger

	Prompts      *Prompts
	QueryTimeout time.Duration
	HistoryTurns int
	Now          func() time.Time
}

// Controller consumes one inbound message at a time per identity. Messages
// for different identities run fully in parallel.
type Controller struct {
	catalog   *language.Catalog
	resolver  *language.Resolver
	store     session.Store
	locker    *session.Locker
	gateway   translate.Gateway
	processor advisor.Processor
	composer  *compose.Composer
	sender    channel.Sender
	memory    memory.Store
	metrics   *observability.Metrics
	logger    *slog.Logger
	prompts   Prompts

	queryTimeout time.Duration
	historyTurns int
	now          func() time.Time
}

func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errors.New("dialogue: language catalog is required")
	case cfg.Store == nil:
		return nil, errors.New("dialogue: session store is required")
	case cfg.Gateway == nil:
		return nil, errors.New("dialogue: translation gateway is required")
	case cfg.Processor == nil:
		return nil, errors.New("dialogue: query processor is required")
	case cfg.Sender == nil:
		return nil, errors.New("dialogue: sender is required")
	}
	c := &Controller{
		catalog:      cfg.Catalog,
		resolver:     language.NewResolver(cfg.Catalog),
		store:        cfg.Store,
		locker:       cfg.Locker,
		gateway:      cfg.Gateway,
		processor:    cfg.Processor,
		composer:     cfg.Composer,
		sender:       cfg.Sender,
		memory:       cfg.Memory,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		queryTimeout: cfg.QueryTimeout,
		historyTurns: cfg.HistoryTurns,
		now:          cfg.Now,
	}
	if c.locker == nil {
		c.locker = session.NewLocker()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.composer == nil {
		c.composer = compose.New(cfg.Gateway, 0, c.logger)
	}
	if cfg.Prompts != nil {
		c.prompts = *cfg.Prompts
	} else {
		c.prompts = DefaultPrompts(cfg.Catalog.Labels())
	}
	if c.queryTimeout <= 0 {
		c.queryTimeout = 25 * time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	names := make([]string, len(allOutcomes))
	for i, o := range allOutcomes {
		names[i] = string(o)
	}
	c.metrics.DeclareOutcomes(names...)
	return c, nil
}

// reply is one pivot-language reply and the language to deliver it in.
type reply struct {
	text string
	lang string
}

// step is the state machine's decision for one message.
type step struct {
	next    session.State
	outcome Outcome
	replies []reply

	// pivot forms of the exchange, kept as advisor history
	userPivot   string
	answerPivot string
}

// Handle processes one message end to end: lock the identity, load or create
// its session, apply the transition, persist, then compose and send replies
// in order. Malformed messages are dropped before any lock or write.
func (c *Controller) Handle(ctx context.Context, msg chat.InboundMessage) (res Result, err error) {
	start := c.now()
	res.Identity = msg.Identity
	c.metrics.ObserveInbound(string(msg.Channel), string(msg.Kind))
	var trace observability.MessageTrace
	defer func() {
		trace.From, trace.To, trace.Outcome = string(res.From), string(res.To), string(res.Outcome)
		trace.Total = c.now().Sub(start)
		c.metrics.ObserveMessage(trace)
	}()
	log := c.logger.With("identity", policy.MaskIdentity(msg.Identity), "message_id", msg.ID, "channel", msg.Channel)

	if msg.Kind == chat.KindMalformed || msg.Identity == "" {
		log.Warn("dropping malformed inbound message", "kind", msg.Kind, "media_type", msg.MediaType)
		res.Outcome = OutcomeMalformed
		return res, nil
	}

	unlock, err := c.locker.Acquire(ctx, msg.Identity)
	if err != nil {
		return res, fmt.Errorf("acquire identity lock: %w", err)
	}
	trace.Mark(observability.StageLockWait, c.now().Sub(start))
	c.metrics.SetHeldLocks(c.locker.Held())
	defer func() {
		unlock()
		c.metrics.SetHeldLocks(c.locker.Held())
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("dialogue panic recovered", "panic", r)
			res.Outcome = OutcomePanic
			err = fmt.Errorf("dialogue panic: %v", r)
		}
	}()

	loadStart := c.now()
	sess, err := c.store.Get(ctx, msg.Identity)
	switch {
	case errors.Is(err, session.ErrNotFound):
		sess = session.New(msg.Identity, c.now())
		log.Info("new identity")
	case err != nil:
		return c.storeFailure(ctx, log, msg, res, fmt.Errorf("load session: %w", err))
	}
	trace.Mark(observability.StageSessionLoad, c.now().Sub(loadStart))
	res.From = sess.State

	st := c.transition(ctx, log, &trace, sess, msg)

	sess.State = st.next
	sess.LastActiveAt = c.now().UTC()
	saveStart := c.now()
	if err := c.store.Upsert(ctx, sess); err != nil {
		return c.storeFailure(ctx, log, msg, res, fmt.Errorf("save session: %w", err))
	}
	trace.Mark(observability.StageSessionSave, c.now().Sub(saveStart))
	res.To = sess.State
	res.Outcome = st.outcome
	if res.From != res.To {
		log.Info("dialogue transition", "from", res.From, "to", res.To)
	}

	composeStart := c.now()
	var replyTexts []string
	for _, r := range st.replies {
		composed := c.composer.Compose(ctx, r.text, r.lang)
		res.Degraded = res.Degraded || composed.Degraded
		for _, chunk := range composed.Chunks {
			res.Replies = append(res.Replies, chat.OutboundMessage{
				Identity: msg.Identity,
				Channel:  msg.Channel,
				Seq:      len(res.Replies),
				Text:     chunk,
			})
		}
		replyTexts = append(replyTexts, strings.Join(composed.Chunks, "\n\n"))
	}
	trace.Mark(observability.StageCompose, c.now().Sub(composeStart))

	c.record(ctx, log, sess, msg, st, replyTexts)

	sendStart := c.now()
	res.Sent, err = c.deliver(ctx, res.Replies)
	trace.Mark(observability.StageSend, c.now().Sub(sendStart))
	if err != nil {
		log.Error("reply delivery failed", "sent", res.Sent, "total", len(res.Replies), "error", err)
		return res, err
	}
	return res, nil
}

// transition applies the state table. It mutates sess fields other than
// State and LastActiveAt, which Handle sets from the returned step.
func (c *Controller) transition(ctx context.Context, log *slog.Logger, trace *observability.MessageTrace, sess *session.Session, msg chat.InboundMessage) step {
	def := c.catalog.Default().Code
	lang := sess.PreferredLanguage
	if lang == "" {
		lang = def
	}

	switch sess.State {
	case session.StateNew:
		return step{
			next:    session.StateAwaitingLanguage,
			outcome: OutcomeLanguagePrompt,
			replies: []reply{{c.prompts.ChooseLanguage, def}},
		}

	case session.StateAwaitingLanguage:
		if msg.Kind == chat.KindImage {
			return c.remind(sess, c.prompts.LanguageFirst, def)
		}
		picked, ok := c.resolver.Resolve(msg.Text)
		if !ok {
			log.Info("language not resolved", "input_runes", utf8.RuneCountInString(msg.Text))
			return step{
				next:    sess.State,
				outcome: OutcomeLanguageUnresolved,
				replies: []reply{{c.prompts.UnresolvedLanguage, def}},
			}
		}
		sess.PreferredLanguage = picked.Code
		return step{
			next:    session.StateAwaitingName,
			outcome: OutcomeLanguageSet,
			replies: []reply{{c.prompts.AskName, picked.Code}},
		}

	case session.StateAwaitingName:
		if msg.Kind == chat.KindImage {
			return c.remind(sess, c.prompts.NameAsText, lang)
		}
		name := cleanName(msg.Text)
		if name == "" {
			return step{next: sess.State, outcome: OutcomeEmptyName, replies: []reply{{c.prompts.EmptyName, lang}}}
		}
		sess.DisplayName = name
		return step{
			next:    session.StateRegistered,
			outcome: OutcomeRegistered,
			replies: []reply{{c.prompts.welcome(name), lang}},
		}

	case session.StateRegistered:
		if msg.Kind == chat.KindImage {
			return c.answerImage(ctx, log, trace, sess, msg, lang)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return c.remind(sess, c.prompts.EmptyQuestion, lang)
		}
		return c.answerText(ctx, log, trace, sess, msg, lang)
	}

	// Unknown states never pass Validate, so a stored record cannot get here.
	// Treat it like a fresh identity rather than wedging the user.
	log.Error("session in unknown state, restarting onboarding", "state", sess.State)
	sess.PreferredLanguage, sess.DisplayName = "", ""
	return step{
		next:    session.StateAwaitingLanguage,
		outcome: OutcomeLanguagePrompt,
		replies: []reply{{c.prompts.ChooseLanguage, def}},
	}
}

func (c *Controller) remind(sess *session.Session, text, lang string) step {
	return step{next: sess.State, outcome: OutcomeReminder, replies: []reply{{text, lang}}}
}

func (c *Controller) answerText(ctx context.Context, log *slog.Logger, trace *observability.MessageTrace, sess *session.Session, msg chat.InboundMessage, lang string) step {
	question := strings.TrimSpace(msg.Text)
	pivotQ := c.toPivot(ctx, log, trace, question, lang)
	history := c.history(ctx, log, sess.Identity)

	started := c.now()
	ans, err := c.query(ctx, func(qctx context.Context) (advisor.Answer, error) {
		return c.processor.AnswerText(qctx, advisor.TextQuery{
			Identity: sess.Identity,
			Farmer:   advisor.Farmer{Name: sess.DisplayName, Language: lang},
			Text:     pivotQ,
			History:  history,
		})
	})
	elapsed := c.now().Sub(started)
	c.metrics.ObserveAdapterLatency("advisor", elapsed)
	trace.Mark(observability.StageAdvisor, elapsed)
	if err != nil {
		return c.queryFailed(log, sess, lang, pivotQ, err)
	}
	return step{
		next:        sess.State,
		outcome:     OutcomeAnswered,
		replies:     []reply{{ans.Text, lang}},
		userPivot:   pivotQ,
		answerPivot: ans.Text,
	}
}

func (c *Controller) answerImage(ctx context.Context, log *slog.Logger, trace *observability.MessageTrace, sess *session.Session, msg chat.InboundMessage, lang string) step {
	caption := msg.Caption()
	if caption != "" {
		caption = c.toPivot(ctx, log, trace, caption, lang)
	}

	started := c.now()
	ans, err := c.query(ctx, func(qctx context.Context) (advisor.Answer, error) {
		return c.processor.AnswerImage(qctx, advisor.ImageQuery{
			Identity:      sess.Identity,
			Farmer:        advisor.Farmer{Name: sess.DisplayName, Language: lang},
			MediaRef:      msg.MediaRef,
			MediaType:     msg.MediaType,
			Caption:       caption,
			ProviderMedia: msg.Channel == chat.ChannelWhatsApp,
		})
	})
	elapsed := c.now().Sub(started)
	c.metrics.ObserveAdapterLatency("advisor", elapsed)
	trace.Mark(observability.StageAdvisor, elapsed)
	userPivot := strings.TrimSpace("[photo] " + caption)
	if err != nil {
		return c.queryFailed(log, sess, lang, userPivot, err)
	}
	return step{
		next:        sess.State,
		outcome:     OutcomeAnswered,
		replies:     []reply{{ans.Text, lang}},
		userPivot:   userPivot,
		answerPivot: ans.Text,
	}
}

type queryResult struct {
	ans      advisor.Answer
	err      error
	panicked any
}

// query makes the single processor call under the query timeout. The caller
// stops waiting at the deadline even if the processor ignores its context;
// a late result is dropped.
func (c *Controller) query(ctx context.Context, call func(context.Context) (advisor.Answer, error)) (advisor.Answer, error) {
	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	done := make(chan queryResult, 1)
	go func() {
		var r queryResult
		defer func() {
			r.panicked = recover()
			done <- r
		}()
		r.ans, r.err = call(qctx)
	}()

	select {
	case r := <-done:
		if r.panicked != nil {
			panic(r.panicked)
		}
		return r.ans, r.err
	case <-qctx.Done():
		return advisor.Answer{}, fmt.Errorf("%w: %w", advisor.ErrQueryUnavailable, qctx.Err())
	}
}

func (c *Controller) queryFailed(log *slog.Logger, sess *session.Session, lang, userPivot string, err error) step {
	class := advisor.ErrorClass(err)
	c.metrics.ObserveAdapterError("advisor", class)
	log.Warn("query unavailable", "class", class, "error", err)
	return step{
		next:      sess.State,
		outcome:   OutcomeQueryUnavailable,
		replies:   []reply{{c.prompts.QueryApology, lang}},
		userPivot: userPivot,
	}
}

// toPivot translates user text for the advisor. On failure the raw text is
// forwarded; most models cope with the user's own language.
func (c *Controller) toPivot(ctx context.Context, log *slog.Logger, trace *observability.MessageTrace, text, lang string) string {
	started := c.now()
	out, err := c.gateway.ToPivot(ctx, text, lang)
	if lang != c.gateway.Pivot() {
		trace.Mark(observability.StageTranslateIn, c.now().Sub(started))
	}
	if err != nil {
		c.metrics.ObserveAdapterError("translate", "unavailable")
		log.Warn("inbound translation unavailable, forwarding raw text", "source", lang, "error", err)
		return text
	}
	return out
}

func (c *Controller) history(ctx context.Context, log *slog.Logger, identity string) []advisor.Turn {
	if c.memory == nil || c.historyTurns <= 0 {
		return nil
	}
	// Each exchange is two records; onboarding records carry no pivot text
	// and are skipped.
	records, err := c.memory.RecentContext(ctx, identity, c.historyTurns*2)
	if err != nil {
		log.Warn("load history failed", "error", err)
		return nil
	}
	turns := make([]advisor.Turn, 0, len(records))
	for _, r := range records {
		if r.PivotContent == "" {
			continue
		}
		turns = append(turns, advisor.Turn{Role: r.Role, Text: r.PivotContent})
	}
	return turns
}

// record appends the exchange to the interaction log. Failures are logged
// and never affect the reply.
func (c *Controller) record(ctx context.Context, log *slog.Logger, sess *session.Session, msg chat.InboundMessage, st step, replies []string) {
	if c.memory == nil {
		return
	}
	lang := sess.PreferredLanguage
	content, redacted := policy.RedactPII(msg.Text)
	userPivot, _ := policy.RedactPII(st.userPivot)
	records := []memory.TurnRecord{{
		Identity:     sess.Identity,
		Role:         memory.RoleUser,
		Kind:         string(msg.Kind),
		Content:      content,
		PivotContent: userPivot,
		MediaRef:     msg.MediaRef,
		Language:     lang,
		PIIRedacted:  redacted,
		CreatedAt:    msg.ReceivedAt,
	}}
	now := c.now().UTC()
	for i, text := range replies {
		rec := memory.TurnRecord{
			Identity:  sess.Identity,
			Role:      memory.RoleAssistant,
			Kind:      string(chat.KindText),
			Content:   text,
			Language:  lang,
			CreatedAt: now,
		}
		if i == 0 {
			rec.PivotContent = st.answerPivot
		}
		records = append(records, rec)
	}
	if records[0].CreatedAt.IsZero() || !records[0].CreatedAt.Before(now) {
		records[0].CreatedAt = now.Add(-time.Microsecond)
	}
	for _, r := range records {
		if err := c.memory.SaveTurn(ctx, r); err != nil {
			log.Warn("save interaction failed", "role", r.Role, "error", err)
			return
		}
	}
}

// deliver sends replies in order and stops at the first failure so a later
// chunk never arrives ahead of an earlier one.
func (c *Controller) deliver(ctx context.Context, replies []chat.OutboundMessage) (int, error) {
	for i, m := range replies {
		if err := c.sender.Send(ctx, m); err != nil {
			c.metrics.ObserveOutbound(string(m.Channel), "failed")
			return i, fmt.Errorf("send reply %d of %d: %w", i+1, len(replies), err)
		}
		c.metrics.ObserveOutbound(string(m.Channel), "sent")
	}
	return len(replies), nil
}

// storeFailure sends one generic apology in the default language, the only
// language known without a session, and reports the error.
func (c *Controller) storeFailure(ctx context.Context, log *slog.Logger, msg chat.InboundMessage, res Result, cause error) (Result, error) {
	log.Error("session store failure", "error", cause)
	res.Outcome = OutcomeStoreFailed
	c.metrics.ObserveAdapterError("session_store", "unavailable")

	composed := c.composer.Compose(ctx, c.prompts.InternalError, c.catalog.Default().Code)
	for _, chunk := range composed.Chunks {
		res.Replies = append(res.Replies, chat.OutboundMessage{
			Identity: msg.Identity,
			Channel:  msg.Channel,
			Seq:      len(res.Replies),
			Text:     chunk,
		})
	}
	sent, err := c.deliver(ctx, res.Replies)
	res.Sent = sent
	if err != nil {
		return res, errors.Join(cause, err)
	}
	return res, cause
}

func cleanName(text string) string {
	name := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = strings.TrimSpace(string([]rune(name)[:maxNameRunes]))
	}
	return name
}
