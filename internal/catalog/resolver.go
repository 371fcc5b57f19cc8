package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/protocol"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

const (
	suffixApproximate = "(visualização aproximada)"
	suffixPartial     = "(visualização parcial)"

	defaultMenuCaption = "Nosso cardápio"
	imageNotFoundText  = "Desculpe, não encontrei a imagem de %s no momento."
	imageFailedText    = "Desculpe, não consegui enviar a imagem de %s agora."
)

// Synthesizer turns text into speech and returns the asset reference.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

type Image struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Request is the input of one resolution. Catalog and Bot come from the
// turn's context snapshot.
type Request struct {
	Blocks  protocol.Blocks
	State   domain.State
	Catalog *Catalog
	Bot     domain.BotConfiguration
}

// Response is the outbound media of a turn.
type Response struct {
	Text          string
	VoiceAssetRef string
	Images        []Image
}

// Resolver maps parsed model blocks to outbound text, speech and images.
// Lookup and rendering failures degrade to text; Resolve never fails.
type Resolver struct {
	assets     AssetStore
	compositor *Compositor
	voice      Synthesizer
	logger     *slog.Logger
}

type ResolverOption func(*Resolver)

func WithSynthesizer(s Synthesizer) ResolverOption {
	return func(r *Resolver) { r.voice = s }
}

func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewResolver(assets AssetStore, opts ...ResolverOption) (*Resolver, error) {
	if assets == nil {
		return nil, errors.New("catalog: asset store must not be nil")
	}
	r := &Resolver{assets: assets, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	comp, err := NewCompositor(assets, r.logger)
	if err != nil {
		return nil, err
	}
	r.compositor = comp
	return r, nil
}

func (r *Resolver) Resolve(ctx context.Context, req Request) Response {
	cat := req.Catalog
	if cat == nil {
		cat = New(nil)
	}

	text := strings.TrimSpace(req.Blocks.Text)
	hasText := req.Blocks.HasText && text != ""
	var resp Response

	if voice := strings.TrimSpace(req.Blocks.Voice); req.Blocks.HasVoice && voice != "" {
		switch {
		case req.State == domain.StateConfirmation || req.State == domain.StateCommitted:
			if !hasText {
				text = voice
			}
		case r.voice == nil:
			if !hasText {
				text = voice
			}
		default:
			ref, err := r.voice.Synthesize(ctx, voice)
			if err != nil {
				r.logger.Warn("catalog: speech synthesis failed", "err", err)
				if !hasText {
					text = voice
				}
				break
			}
			resp.VoiceAssetRef = ref
		}
	}

	var notes []string
	seen := make(map[string]bool)
	asked := false
	for _, id := range req.Blocks.ImageIDs {
		img, item, note := r.resolveImage(ctx, cat, req.Bot, id)
		if note != "" {
			notes = append(notes, note)
		}
		if img.URL == "" || seen[img.URL] {
			continue
		}
		seen[img.URL] = true
		resp.Images = append(resp.Images, img)

		if asked {
			continue
		}
		asked = true
		q := FollowUp(req.State, item)
		if q == "" {
			continue
		}
		if !hasText || !strings.HasSuffix(text, "?") {
			text = joinLines(text, q)
		}
	}

	resp.Text = joinLines(append([]string{text}, notes...)...)
	return resp
}

// resolveImage returns the image for id, the item it shows (zero for the
// menu card) and a user-facing note when the lookup degraded.
func (r *Resolver) resolveImage(ctx context.Context, cat *Catalog, bot domain.BotConfiguration, id string) (Image, domain.MenuItem, string) {
	id = strings.TrimSpace(id)
	if isMenuCard(id) {
		if bot.MenuImageRef == "" {
			return Image{}, domain.MenuItem{}, fmt.Sprintf(imageNotFoundText, "cardápio")
		}
		caption := bot.MenuCaption
		if caption == "" {
			caption = defaultMenuCaption
		}
		return Image{ID: id, URL: r.assets.URL(bot.MenuImageRef), Caption: caption}, domain.MenuItem{}, ""
	}

	if a, b, ok := domain.SplitComposite(id); ok {
		return r.resolveComposite(ctx, cat, id, a, b)
	}

	item, err := cat.Find(id)
	if err != nil {
		r.logger.Info("catalog: image lookup miss", "id", id)
		return Image{}, domain.MenuItem{}, fmt.Sprintf(imageNotFoundText, displayName(id))
	}
	return Image{ID: id, URL: r.assets.URL(item.Images.General), Caption: captionOf(item)}, item, ""
}

func (r *Resolver) resolveComposite(ctx context.Context, cat *Catalog, id, aID, bID string) (Image, domain.MenuItem, string) {
	a, okA := cat.Lookup(aID)
	b, okB := cat.Lookup(bID)
	caption := fmt.Sprintf("Pizza meio %s e meio %s", shortName(a, aID), shortName(b, bID))
	if !okA && !okB {
		r.logger.Info("catalog: composite lookup miss", "id", id)
		return Image{}, domain.MenuItem{}, fmt.Sprintf(imageNotFoundText, strings.ToLower(caption))
	}

	subject := a
	if !okA {
		subject = b
	}

	if okA && okB && a.Images.LeftHalf != "" && b.Images.RightHalf != "" {
		url, err := r.compositor.Compose(ctx, a, b)
		if err == nil {
			return Image{ID: id, URL: url, Caption: caption}, subject, ""
		}
		r.logger.Warn("catalog: compositing failed", "id", id, "err", err)
		if ref := generalOf(b, a); ref != "" {
			return Image{ID: id, URL: r.assets.URL(ref), Caption: caption + " " + suffixPartial}, subject, ""
		}
		return Image{}, subject, fmt.Sprintf(imageFailedText, strings.ToLower(caption))
	}

	if ref := generalOf(a, b); ref != "" {
		return Image{ID: id, URL: r.assets.URL(ref), Caption: caption + " " + suffixApproximate}, subject, ""
	}
	return Image{}, domain.MenuItem{}, fmt.Sprintf(imageNotFoundText, strings.ToLower(caption))
}

// FollowUp is the question that follows the first image of a turn.
func FollowUp(state domain.State, item domain.MenuItem) string {
	switch state {
	case domain.StateFlavor:
		return "Gostaria de pedir essa ou prefere ver outras opções?"
	case domain.StateWholeOrSplit:
		if item.IsDessert() {
			return "Posso incluir essa no seu pedido?"
		}
		return "Vai querer a pizza inteira ou meio a meio?"
	case domain.StateMoreOrFinish:
		return "Deseja adicionar mais alguma coisa ou podemos finalizar?"
	case domain.StateBeverage:
		return "Vai querer uma bebida para acompanhar?"
	}
	return ""
}

func isMenuCard(id string) bool {
	f := textutil.Fold(id)
	return f == "cardapio" || f == "menu"
}

func generalOf(items ...domain.MenuItem) string {
	for _, it := range items {
		if it.Images.General != "" {
			return it.Images.General
		}
	}
	return ""
}

func captionOf(it domain.MenuItem) string {
	if it.Description == "" {
		return it.Name
	}
	return it.Name + " - " + it.Description
}

func shortName(it domain.MenuItem, id string) string {
	name := it.Name
	if name == "" {
		name = displayName(id)
	}
	if len(name) > 6 && strings.EqualFold(name[:6], "pizza ") {
		name = name[6:]
	}
	return name
}

// displayName turns an identifier into readable words.
func displayName(id string) string {
	seg := domain.TrailingSegment(id)
	return strings.ReplaceAll(seg, "-", " ")
}

func joinLines(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
