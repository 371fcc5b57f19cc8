package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/catalog"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/dialogue"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/order"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/prompt"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/protocol"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

const (
	defaultMaxContext  = 20
	defaultMaxMessage  = 2000
	defaultTurnTimeout = 30 * time.Second
	defaultStaleAfter  = 3 * time.Hour
	defaultModel       = "gpt-4o-mini"

	mediaText  = "text"
	mediaAudio = "audio"
)

type ConversationStore interface {
	LatestConversation(ctx context.Context, identity string) (*domain.Conversation, error)
	SaveConversation(ctx context.Context, conv *domain.Conversation) error
}

type ContextSource interface {
	Get(ctx context.Context) (prompt.Snapshot, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (*domain.AddressData, error)
}

// Settings reads runtime settings that may change without a deploy.
type Settings interface {
	GetOr(ctx context.Context, name, fallback string) string
}

type MediaResolver interface {
	Resolve(ctx context.Context, req catalog.Request) catalog.Response
}

type OrderCommitter interface {
	Commit(ctx context.Context, conv *domain.Conversation, conf order.Confirmation) (order.CommitResult, error)
}

// Deps are the collaborators of a TurnService. Geocoder and Settings are
// optional.
type Deps struct {
	Conversations ConversationStore
	Context       ContextSource
	LLM           LLMClient
	Geocoder      Geocoder
	Settings      Settings
	Resolver      MediaResolver
	Committer     OrderCommitter
	Stager        *order.Stager
	Machine       *dialogue.Machine
	Assembler     *prompt.Assembler
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

type Config struct {
	ParamPrefix      string
	DefaultModel     string
	MaxContextItems  int
	MaxMessageLength int
	TurnTimeout      time.Duration
	StaleAfter       time.Duration
}

type Inbound struct {
	Identity          string `json:"identity"`
	Text              string `json:"text"`
	IsVoiceTranscript bool   `json:"isVoiceTranscript"`
	MediaKind         string `json:"mediaKind"`
}

type Outbound struct {
	Success        bool            `json:"success"`
	Text           string          `json:"text,omitempty"`
	VoiceAssetRef  string          `json:"voiceAssetRef,omitempty"`
	ImageAssetRef  string          `json:"imageAssetRef,omitempty"`
	ImageCaption   string          `json:"imageCaption,omitempty"`
	AllImages      []catalog.Image `json:"allImages,omitempty"`
	State          int             `json:"state"`
	ConversationID string          `json:"conversationId,omitempty"`
	OrderRef       string          `json:"orderRef,omitempty"`
}

// TurnService runs one conversational turn per inbound message. Turns of
// the same identity are serialized; different identities run concurrently.
type TurnService struct {
	d     Deps
	cfg   Config
	locks *identityLocks
}

func NewTurnService(d Deps, cfg Config) (*TurnService, error) {
	switch {
	case d.Conversations == nil:
		return nil, errors.New("usecase: conversation store must not be nil")
	case d.Context == nil:
		return nil, errors.New("usecase: context source must not be nil")
	case d.LLM == nil:
		return nil, errors.New("usecase: llm client must not be nil")
	case d.Resolver == nil:
		return nil, errors.New("usecase: media resolver must not be nil")
	case d.Committer == nil:
		return nil, errors.New("usecase: order committer must not be nil")
	}
	if d.Stager == nil {
		d.Stager = order.NewStager(nil, d.Now)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Machine == nil {
		d.Machine = dialogue.NewMachine(dialogue.WithLogger(d.Logger))
	}
	if d.Assembler == nil {
		d.Assembler = prompt.NewAssembler(d.Logger)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}

	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.MaxContextItems <= 0 {
		cfg.MaxContextItems = defaultMaxContext
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessage
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	return &TurnService{d: d, cfg: cfg, locks: newIdentityLocks()}, nil
}

// Handle processes one inbound message. Only malformed requests return an
// error; every other failure becomes an apology with Success false.
func (s *TurnService) Handle(ctx context.Context, in Inbound) (Outbound, error) {
	identity := strings.TrimSpace(in.Identity)
	text := strings.TrimSpace(in.Text)
	kind := strings.ToLower(strings.TrimSpace(in.MediaKind))
	if kind == "" {
		kind = mediaText
	}
	if identity == "" {
		return Outbound{}, newError(ErrorInvalidInput, "missing_identity", nil)
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return Outbound{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	supported := kind == mediaText || kind == mediaAudio
	if text == "" && supported {
		return Outbound{}, newError(ErrorInvalidInput, "empty_message", nil)
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	log := s.d.Logger.With("identity", identity, "voice_transcript", in.IsVoiceTranscript)
	now := s.d.Now().UTC()

	snap, err := s.d.Context.Get(ctx)
	if err != nil {
		log.Error("usecase: load context", "code", classify(err), "err", err)
		return apology(domain.StateFlavor), nil
	}

	conv, err := s.openConversation(ctx, log, identity, now)
	if err != nil {
		log.Error("usecase: load conversation", "code", classify(err), "err", err)
		return apology(domain.StateFlavor), nil
	}
	log = log.With("conversation_id", conv.ID)

	if !supported && !order.LooksLikeCompleteOrder(text, snap.Menu) {
		log.Info("usecase: unsupported media", "media_kind", kind)
		return Outbound{Success: true, Text: replyUnsupportedMedia, State: int(conv.State), ConversationID: conv.ID}, nil
	}

	if dialogue.IsReset(text) {
		log.Info("usecase: reset requested", "previous_state", conv.State.String())
		conv = domain.NewConversation(s.d.NewID(), identity, now)
		log = log.With("conversation_id", conv.ID)
	}

	conv.AppendMessage(domain.RoleUser, text, now)

	if ic, ok := s.d.Machine.Intercept(conv, text); ok {
		reply := s.interceptReply(ic, snap)
		log.Info("usecase: intercepted", "kind", string(ic.Kind), "state", conv.State.String())
		conv.AppendMessage(domain.RoleBot, reply, now)
		s.persist(ctx, log, conv, now)
		return Outbound{Success: true, Text: reply, State: int(conv.State), ConversationID: conv.ID}, nil
	}

	if conv.State == domain.StateAddress {
		s.geocode(ctx, log, conv, text)
	}

	raw, err := s.ask(ctx, snap, conv)
	if err != nil {
		log.Error("usecase: model call failed", "code", classify(err), "err", err)
		s.persist(ctx, log, conv, now)
		return apology(conv.State), nil
	}
	blocks := protocol.Parse(raw)
	conv.AppendMessage(domain.RoleBot, raw, now)

	return s.complete(ctx, log, snap, conv, text, raw, blocks, now), nil
}

// complete stages, transitions, commits and resolves media for a model reply.
func (s *TurnService) complete(ctx context.Context, log *slog.Logger, snap prompt.Snapshot, conv *domain.Conversation, userText, raw string, blocks protocol.Blocks, now time.Time) Outbound {
	startState := conv.State
	needsNumber := false

	if blocks.HasJSON {
		draft, err := order.ParsePayload(blocks.JSON)
		if err != nil {
			log.Warn("usecase: order payload rejected", "err", err)
		} else {
			res := s.d.Stager.Stage(conv, draft)
			switch {
			case res.NeedsNumber:
				needsNumber = true
				log.Info("usecase: staged order lacks house number")
			case res.Err != nil:
				log.Info("usecase: order not staged", "err", res.Err)
			case res.Staged:
				log.Info("usecase: order staged", "total", res.Order.TotalValue)
			}
		}
	}

	var committed *order.CommitResult
	if !needsNumber && conv.State == startState {
		t := s.d.Machine.Next(dialogue.Input{
			State:        conv.State,
			UserText:     userText,
			ModelText:    raw,
			Blocks:       blocks,
			Conversation: conv,
			Menu:         snap.Menu,
		})
		switch {
		case t.Advance && t.To == domain.StateCommitted, confirmsIncompleteOrder(conv, userText, blocks):
			res, err := s.d.Committer.Commit(ctx, conv, order.Confirmation{
				Text:     blocks.Confirmation,
				AssetRef: snap.Bot.ConfirmationImageRef,
			})
			switch {
			case errors.Is(err, order.ErrAddressMissingNumber):
				needsNumber = true
				log.Info("usecase: commit refused, house number missing")
			case err != nil:
				// The conversation stays at confirmation so the customer can retry.
				log.Error("usecase: commit failed", "code", classify(err), "err", err)
			default:
				committed = &res
			}
		case t.Advance:
			conv.Advance(t.To)
			log.Info("usecase: state advanced", "from", startState.String(), "to", t.To.String(), "reason", t.Reason)
		}
	}

	resolved := s.d.Resolver.Resolve(ctx, catalog.Request{
		Blocks:  blocks,
		State:   conv.State,
		Catalog: catalog.New(snap.Menu),
		Bot:     snap.Bot,
	})

	out := Outbound{
		Success:        true,
		Text:           resolved.Text,
		VoiceAssetRef:  resolved.VoiceAssetRef,
		AllImages:      resolved.Images,
		State:          int(conv.State),
		ConversationID: conv.ID,
	}

	switch {
	case needsNumber:
		out.Text = numberRequestReply(conv)
		out.VoiceAssetRef = ""
	case committed != nil:
		out.OrderRef = committed.OrderRef
		if c := strings.TrimSpace(committed.Text); c != "" && !strings.Contains(out.Text, c) {
			out.Text = joinText(out.Text, c)
		}
		if committed.AssetRef != "" {
			out.AllImages = append(out.AllImages, catalog.Image{ID: "confirmacao", URL: committed.AssetRef})
		}
	}
	if len(out.AllImages) > 0 {
		out.ImageAssetRef = out.AllImages[0].URL
		out.ImageCaption = out.AllImages[0].Caption
	}

	// A committed conversation was written with the order.
	if committed == nil {
		s.persist(ctx, log, conv, now)
	} else {
		log.Info("usecase: order committed", "order_id", committed.OrderRef, "total", committed.TotalValue)
	}
	return out
}

// openConversation returns the open conversation of identity, starting a new
// one when none exists or the latest is terminal or stale.
func (s *TurnService) openConversation(ctx context.Context, log *slog.Logger, identity string, now time.Time) (*domain.Conversation, error) {
	conv, err := s.d.Conversations.LatestConversation(ctx, identity)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewConversation(s.d.NewID(), identity, now), nil
	case err != nil:
		return nil, fmt.Errorf("usecase: latest conversation: %w", err)
	case conv.IsTerminal() || conv.IsStale(now, s.cfg.StaleAfter):
		if conv.State == domain.StateCommitted && conv.CommittedOrderRef == "" {
			log.Warn("usecase: committed conversation without order reference", "stale_conversation_id", conv.ID)
		}
		return domain.NewConversation(s.d.NewID(), identity, now), nil
	}
	return conv, nil
}

func (s *TurnService) interceptReply(ic dialogue.Intercept, snap prompt.Snapshot) string {
	switch ic.Kind {
	case dialogue.InterceptHouseNumber:
		return addressConfirmedReply(ic.Address, snap.Payments)
	case dialogue.InterceptCardClarification:
		return replyCardClarify
	default:
		return paymentOptionsReply(snap.Payments)
	}
}

// geocode resolves a free-text address. Failures leave the conversation
// unchanged.
func (s *TurnService) geocode(ctx context.Context, log *slog.Logger, conv *domain.Conversation, text string) {
	if s.d.Geocoder == nil || textutil.IsDigitsOnly(text) || len(strings.Fields(text)) < 2 {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()
	addr, err := s.d.Geocoder.Geocode(gctx, text)
	if err != nil {
		log.Warn("usecase: geocoding failed", "code", classify(err), "err", err)
		return
	}
	conv.AddressData = addr
}

func (s *TurnService) ask(ctx context.Context, snap prompt.Snapshot, conv *domain.Conversation) (string, error) {
	system := s.d.Assembler.Build(snap, conv)
	messages := prompt.Messages(system, conv.Messages, s.cfg.MaxContextItems)

	model := s.cfg.DefaultModel
	if s.d.Settings != nil {
		model = s.d.Settings.GetOr(ctx, s.cfg.ParamPrefix+"/config/llm_model", model)
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()
	raw, err := s.d.LLM.Chat(cctx, model, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", newError(ErrorUpstream, "empty_model_output", nil)
	}
	return raw, nil
}

func (s *TurnService) persist(ctx context.Context, log *slog.Logger, conv *domain.Conversation, now time.Time) {
	conv.Touch(now)
	if err := s.d.Conversations.SaveConversation(ctx, conv); err != nil {
		log.Error("usecase: save conversation", "code", classify(err), "err", err)
	}
}

// confirmsIncompleteOrder reports a confirmation of a staged order whose
// address lost its house number. The committer either recovers the number
// from the history or sends the conversation back to the address step.
func confirmsIncompleteOrder(conv *domain.Conversation, userText string, blocks protocol.Blocks) bool {
	p := conv.PendingOrder
	return conv.State == domain.StateConfirmation &&
		blocks.HasConfirmation &&
		dialogue.IsAffirmative(userText) &&
		p != nil && len(p.Items) > 0 &&
		!textutil.HasDigit(p.Address)
}

func apology(state domain.State) Outbound {
	return Outbound{Success: false, Text: replyApology, State: int(state)}
}

func joinText(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
